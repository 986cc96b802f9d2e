//go:build protogen

package grpcserver

import (
	"context"
	"strings"

	"google.golang.org/grpc"

	"github.com/carebook-app/carebook/libs/db"
	profilev1 "github.com/carebook-app/carebook/protos/gen/profile/v1"
	"github.com/carebook-app/carebook/services/profile-service/internal/storage"
)

type server struct {
	profilev1.UnimplementedProfileServiceServer
	pool *db.Pool
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, pool *db.Pool, repo *storage.Repository) {
	profilev1.RegisterProfileServiceServer(grpcServer, &server{pool: pool, repo: repo})
}

// GetOwnerProfile serves the scheduling policy the calendar consumes:
// display name, time zone, workday window, and default reminder offsets.
// Missing or unreadable profiles degrade to the built-in defaults rather
// than erroring, so a profile outage never blocks a booking.
func (s *server) GetOwnerProfile(ctx context.Context, req *profilev1.OwnerProfileRequest) (*profilev1.OwnerProfileResponse, error) {
	resp := &profilev1.OwnerProfileResponse{
		OwnerId:            req.GetOwnerId(),
		WorkdayStartMinute: storage.DefaultWorkdayStartMinute,
		WorkdayEndMinute:   storage.DefaultWorkdayEndMinute,
		SlotStepMinutes:    storage.DefaultSlotStepMinutes,
		ReminderPolicy: &profilev1.ReminderPolicy{
			Timezone: storage.DefaultTimezone,
		},
	}

	if s.repo == nil || req.GetOwnerId() == "" {
		return resp, nil
	}

	p, err := s.repo.GetOrCreateProfile(ctx, req.GetOwnerId())
	if err != nil {
		return resp, nil
	}

	resp.DisplayName = strings.TrimSpace(p.DisplayName)
	if tz := strings.TrimSpace(p.Timezone); tz != "" {
		resp.ReminderPolicy.Timezone = tz
	}
	if p.WorkdayStartMinute < p.WorkdayEndMinute && p.SlotStepMinutes > 0 {
		resp.WorkdayStartMinute = int32(p.WorkdayStartMinute)
		resp.WorkdayEndMinute = int32(p.WorkdayEndMinute)
		resp.SlotStepMinutes = int32(p.SlotStepMinutes)
	}
	for _, mins := range p.OffsetsMins {
		if mins <= 0 {
			continue
		}
		resp.ReminderPolicy.ReminderOffsetsMinutes = append(resp.ReminderPolicy.ReminderOffsetsMinutes, int32(mins))
	}
	return resp, nil
}
