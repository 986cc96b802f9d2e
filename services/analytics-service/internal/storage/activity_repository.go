package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/carebook-app/carebook/libs/db"
	"github.com/jackc/pgx/v5"
)

// Repository persists calendar and notification activity and serves the
// per-owner aggregates behind /v1/stats.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// CalendarChange is one calendar.* change event. Day is the entity's
// calendar date (YYYY-MM-DD); aggregates attribute the change to that
// day, not to the day the change was made.
type CalendarChange struct {
	EventID   string
	EventType string
	OwnerID   string
	EntityID  string
	Day       string
}

// ApplyCalendarChange records the raw change and bumps the owner's daily
// counters. The raw row is keyed by event id, so a redelivered event
// reports applied=false and leaves the counters alone.
func (r *Repository) ApplyCalendarChange(ctx context.Context, c CalendarChange) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO calendar_activity (event_id, event_type, owner_id, entity_id, day)
		VALUES ($1, $2, $3, $4, $5::date)
		ON CONFLICT (event_id) DO NOTHING
	`, c.EventID, c.EventType, c.OwnerID, c.EntityID, c.Day)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	verb := ChangeVerb(c.EventType)
	switch {
	case strings.HasPrefix(c.EventType, "calendar.appointment."):
		err = bumpAppointmentDay(ctx, tx, c.OwnerID, c.Day, verb)
	case strings.HasPrefix(c.EventType, "calendar.event."):
		err = bumpEventDay(ctx, tx, c.OwnerID, c.Day, verb)
	default:
		err = fmt.Errorf("unhandled event type %q", c.EventType)
	}
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ChangeVerb extracts the action from a change event type:
// "calendar.event.completed.v1" reads as "completed".
func ChangeVerb(eventType string) string {
	s := strings.TrimSuffix(eventType, ".v1")
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

func bumpAppointmentDay(ctx context.Context, tx pgx.Tx, ownerID, day, verb string) error {
	created, updated, cancelled := 0, 0, 0
	switch verb {
	case "created":
		created = 1
	case "updated":
		updated = 1
	case "cancelled":
		cancelled = 1
	default:
		return fmt.Errorf("unhandled appointment change %q", verb)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO daily_appointment_metrics (owner_id, day, created_count, updated_count, cancelled_count)
		VALUES ($1, $2::date, $3, $4, $5)
		ON CONFLICT (owner_id, day)
		DO UPDATE SET created_count = daily_appointment_metrics.created_count + EXCLUDED.created_count,
		              updated_count = daily_appointment_metrics.updated_count + EXCLUDED.updated_count,
		              cancelled_count = daily_appointment_metrics.cancelled_count + EXCLUDED.cancelled_count,
		              updated_at = now()
	`, ownerID, day, created, updated, cancelled)
	return err
}

func bumpEventDay(ctx context.Context, tx pgx.Tx, ownerID, day, verb string) error {
	created, updated, completed, cancelled, deleted := 0, 0, 0, 0, 0
	switch verb {
	case "created":
		created = 1
	case "updated":
		updated = 1
	case "completed":
		completed = 1
	case "cancelled":
		cancelled = 1
	case "deleted":
		deleted = 1
	default:
		return fmt.Errorf("unhandled event change %q", verb)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO daily_event_metrics (owner_id, day, created_count, updated_count, completed_count, cancelled_count, deleted_count)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, day)
		DO UPDATE SET created_count = daily_event_metrics.created_count + EXCLUDED.created_count,
		              updated_count = daily_event_metrics.updated_count + EXCLUDED.updated_count,
		              completed_count = daily_event_metrics.completed_count + EXCLUDED.completed_count,
		              cancelled_count = daily_event_metrics.cancelled_count + EXCLUDED.cancelled_count,
		              deleted_count = daily_event_metrics.deleted_count + EXCLUDED.deleted_count,
		              updated_at = now()
	`, ownerID, day, created, updated, completed, cancelled, deleted)
	return err
}

// NotificationOutcome is one delivery attempt reported by the
// notification service. Status is "sent" or "failed".
type NotificationOutcome struct {
	AppointmentID string
	OwnerID       string
	Channel       string
	Status        string
	At            time.Time
}

func (r *Repository) RecordNotification(ctx context.Context, n NotificationOutcome) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO notification_metrics (appointment_id, owner_id, channel, occurred_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`, n.AppointmentID, n.OwnerID, n.Channel, n.At.UTC(), n.Status); err != nil {
		return err
	}

	sentInc, failedInc := 0, 0
	if n.Status == "sent" {
		sentInc = 1
	} else {
		failedInc = 1
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO daily_notification_metrics (owner_id, day, channel, sent_count, failed_count)
		VALUES ($1, $2::date, $3, $4, $5)
		ON CONFLICT (owner_id, day, channel)
		DO UPDATE SET sent_count = daily_notification_metrics.sent_count + EXCLUDED.sent_count,
		              failed_count = daily_notification_metrics.failed_count + EXCLUDED.failed_count,
		              updated_at = now()
	`, n.OwnerID, n.At.UTC(), n.Channel, sentInc, failedInc); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ReminderDLQ is a reminder job the scheduler gave up on.
type ReminderDLQ struct {
	AppointmentID string
	OwnerID       string
	Channel       string
	RemindAt      time.Time
	ErrorReason   string
	FailedAt      time.Time
}

func (r *Repository) RecordReminderDLQ(ctx context.Context, d ReminderDLQ) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduler_dlq_events (appointment_id, owner_id, channel, remind_at, error_reason, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.AppointmentID, d.OwnerID, d.Channel, d.RemindAt.UTC(), d.ErrorReason, d.FailedAt.UTC())
	return err
}

func (r *Repository) RecordAuditEvent(ctx context.Context, eventType, actorID string, metadata []byte, createdAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO security_audit_events (event_type, actor_id, metadata, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4)
	`, eventType, actorID, metadata, createdAt.UTC())
	return err
}

// DayActivity is one day of an owner's calendar counters.
type DayActivity struct {
	Day                   string `json:"day"`
	AppointmentsCreated   int    `json:"appointments_created"`
	AppointmentsUpdated   int    `json:"appointments_updated"`
	AppointmentsCancelled int    `json:"appointments_cancelled"`
	EventsCreated         int    `json:"events_created"`
	EventsUpdated         int    `json:"events_updated"`
	EventsCompleted       int    `json:"events_completed"`
	EventsCancelled       int    `json:"events_cancelled"`
	EventsDeleted         int    `json:"events_deleted"`
}

// ChannelActivity sums an owner's delivery outcomes per channel.
type ChannelActivity struct {
	Channel string `json:"channel"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
}

// Stats is the /v1/stats response body. Days only lists days with at
// least one counter.
type Stats struct {
	OwnerID       string            `json:"owner_id"`
	Since         string            `json:"since"`
	Days          []DayActivity     `json:"days"`
	Notifications []ChannelActivity `json:"notifications"`
}

func (r *Repository) OwnerStats(ctx context.Context, ownerID string, since time.Time) (Stats, error) {
	sinceDay := since.UTC().Format("2006-01-02")

	byDay := map[string]*DayActivity{}
	if err := r.collectAppointmentDays(ctx, ownerID, sinceDay, byDay); err != nil {
		return Stats{}, err
	}
	if err := r.collectEventDays(ctx, ownerID, sinceDay, byDay); err != nil {
		return Stats{}, err
	}
	notifications, err := r.channelTotals(ctx, ownerID, sinceDay)
	if err != nil {
		return Stats{}, err
	}

	days := make([]DayActivity, 0, len(byDay))
	for _, d := range byDay {
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })

	return Stats{
		OwnerID:       ownerID,
		Since:         sinceDay,
		Days:          days,
		Notifications: notifications,
	}, nil
}

func (r *Repository) collectAppointmentDays(ctx context.Context, ownerID, sinceDay string, byDay map[string]*DayActivity) error {
	rows, err := r.pool.Query(ctx, `
		SELECT day, created_count, updated_count, cancelled_count
		FROM daily_appointment_metrics
		WHERE owner_id = $1 AND day >= $2::date
	`, ownerID, sinceDay)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var day time.Time
		var created, updated, cancelled int
		if err := rows.Scan(&day, &created, &updated, &cancelled); err != nil {
			return err
		}
		d := dayEntry(byDay, day)
		d.AppointmentsCreated = created
		d.AppointmentsUpdated = updated
		d.AppointmentsCancelled = cancelled
	}
	return rows.Err()
}

func (r *Repository) collectEventDays(ctx context.Context, ownerID, sinceDay string, byDay map[string]*DayActivity) error {
	rows, err := r.pool.Query(ctx, `
		SELECT day, created_count, updated_count, completed_count, cancelled_count, deleted_count
		FROM daily_event_metrics
		WHERE owner_id = $1 AND day >= $2::date
	`, ownerID, sinceDay)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var day time.Time
		var created, updated, completed, cancelled, deleted int
		if err := rows.Scan(&day, &created, &updated, &completed, &cancelled, &deleted); err != nil {
			return err
		}
		d := dayEntry(byDay, day)
		d.EventsCreated = created
		d.EventsUpdated = updated
		d.EventsCompleted = completed
		d.EventsCancelled = cancelled
		d.EventsDeleted = deleted
	}
	return rows.Err()
}

func (r *Repository) channelTotals(ctx context.Context, ownerID, sinceDay string) ([]ChannelActivity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT channel, COALESCE(SUM(sent_count), 0), COALESCE(SUM(failed_count), 0)
		FROM daily_notification_metrics
		WHERE owner_id = $1 AND day >= $2::date
		GROUP BY channel
		ORDER BY channel
	`, ownerID, sinceDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := []ChannelActivity{}
	for rows.Next() {
		var c ChannelActivity
		var sent, failed int64
		if err := rows.Scan(&c.Channel, &sent, &failed); err != nil {
			return nil, err
		}
		c.Sent = int(sent)
		c.Failed = int(failed)
		totals = append(totals, c)
	}
	return totals, rows.Err()
}

func dayEntry(byDay map[string]*DayActivity, day time.Time) *DayActivity {
	key := day.Format("2006-01-02")
	if d, ok := byDay[key]; ok {
		return d
	}
	d := &DayActivity{Day: key}
	byDay[key] = d
	return d
}
