package storage

import (
	"context"
	"time"

	"github.com/carebook-app/carebook/libs/db"
)

// Scheduling defaults applied to owners who never edited their profile.
// They match the calendar's built-in booking grid.
const (
	DefaultWorkdayStartMinute = 540  // 09:00
	DefaultWorkdayEndMinute   = 1020 // 17:00
	DefaultSlotStepMinutes    = 30
	DefaultTimezone           = "UTC"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// OwnerProfile is the per-owner scheduling preference record. The workday
// window and slot step are expressed in minutes from midnight.
type OwnerProfile struct {
	OwnerID            string
	DisplayName        string
	Timezone           string
	WorkdayStartMinute int
	WorkdayEndMinute   int
	SlotStepMinutes    int
	OffsetsMins        []int
	UpdatedAt          time.Time
}

// GetOrCreateProfile returns the owner's profile, inserting the default
// row first if the owner has never saved one. Keeps first-run UX smooth:
// every owner always has a profile.
func (r *Repository) GetOrCreateProfile(ctx context.Context, ownerID string) (OwnerProfile, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO owner_profiles (owner_id)
		VALUES ($1)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID)
	if err != nil {
		return OwnerProfile{}, err
	}

	var p OwnerProfile
	err = r.pool.QueryRow(ctx, `
		SELECT owner_id::text, display_name, timezone,
			workday_start_minute, workday_end_minute, slot_step_minutes,
			reminder_offsets_minutes, updated_at
		FROM owner_profiles
		WHERE owner_id = $1
	`, ownerID).Scan(
		&p.OwnerID, &p.DisplayName, &p.Timezone,
		&p.WorkdayStartMinute, &p.WorkdayEndMinute, &p.SlotStepMinutes,
		&p.OffsetsMins, &p.UpdatedAt,
	)
	return p, err
}

// UpdateProfile replaces the owner's profile wholesale. PUT semantics:
// the handler validates and fills every field before calling.
func (r *Repository) UpdateProfile(ctx context.Context, p OwnerProfile) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO owner_profiles (
			owner_id, display_name, timezone,
			workday_start_minute, workday_end_minute, slot_step_minutes,
			reminder_offsets_minutes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			timezone = EXCLUDED.timezone,
			workday_start_minute = EXCLUDED.workday_start_minute,
			workday_end_minute = EXCLUDED.workday_end_minute,
			slot_step_minutes = EXCLUDED.slot_step_minutes,
			reminder_offsets_minutes = EXCLUDED.reminder_offsets_minutes,
			updated_at = now()
	`, p.OwnerID, p.DisplayName, p.Timezone,
		p.WorkdayStartMinute, p.WorkdayEndMinute, p.SlotStepMinutes,
		p.OffsetsMins)
	return err
}
