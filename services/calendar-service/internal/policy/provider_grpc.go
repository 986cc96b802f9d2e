//go:build protogen

package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/carebook-app/carebook/libs/grpcx"
	profilev1 "github.com/carebook-app/carebook/protos/gen/profile/v1"
	"github.com/carebook-app/carebook/services/calendar-service/internal/availability"
)

type grpcProvider struct {
	client   profilev1.ProfileServiceClient
	fallback Profile
}

func NewProfilePolicyProvider(logger *slog.Logger, fallback Profile, addr string) (Provider, error) {
	if addr == "" {
		return NewStaticProvider(fallback), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("grpc profile provider unavailable, using fallback", "err", err)
		return NewStaticProvider(fallback), nil
	}

	logger.Info("grpc profile provider enabled", "addr", addr)
	return &grpcProvider{client: profilev1.NewProfileServiceClient(conn), fallback: fallback}, nil
}

func (p *grpcProvider) OwnerProfile(ctx context.Context, ownerID string) (Profile, error) {
	resp, err := p.client.GetOwnerProfile(ctx, &profilev1.OwnerProfileRequest{OwnerId: ownerID})
	if err != nil {
		return Profile{}, err
	}
	profile := Profile{
		DisplayName: resp.GetDisplayName(),
		Timezone:    resp.GetReminderPolicy().GetTimezone(),
		Workday: availability.Window{
			StartMinute: int(resp.GetWorkdayStartMinute()),
			EndMinute:   int(resp.GetWorkdayEndMinute()),
			StepMinutes: int(resp.GetSlotStepMinutes()),
		},
	}
	if profile.DisplayName == "" {
		profile.DisplayName = p.fallback.DisplayName
	}
	if profile.Timezone == "" {
		profile.Timezone = p.fallback.Timezone
	}
	if profile.Workday == (availability.Window{}) {
		profile.Workday = p.fallback.Workday
	}
	for _, mins := range resp.GetReminderPolicy().GetReminderOffsetsMinutes() {
		if mins <= 0 {
			continue
		}
		profile.ReminderOffsets = append(profile.ReminderOffsets, time.Duration(mins)*time.Minute)
	}
	if len(profile.ReminderOffsets) == 0 {
		profile.ReminderOffsets = p.fallback.ReminderOffsets
	}
	return profile, nil
}
