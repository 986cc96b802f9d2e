package policy

import (
	"context"
	"time"

	"github.com/carebook-app/carebook/services/calendar-service/internal/availability"
)

// Profile carries the owner-level scheduling defaults served by
// profile-service: what to call the calendar, which zone reminder
// instants are computed in, the workday window the slot grid is built
// from, and the reminder offsets applied when an appointment does not
// choose its own.
type Profile struct {
	DisplayName     string
	Timezone        string
	Workday         availability.Window
	ReminderOffsets []time.Duration
}

type Provider interface {
	OwnerProfile(ctx context.Context, ownerID string) (Profile, error)
}

type staticProvider struct {
	profile Profile
}

func NewStaticProvider(profile Profile) Provider {
	return &staticProvider{profile: profile}
}

func (p *staticProvider) OwnerProfile(_ context.Context, _ string) (Profile, error) {
	return p.profile, nil
}
