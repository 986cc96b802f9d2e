package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carebook-app/carebook/libs/db"
	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
	"github.com/carebook-app/carebook/services/calendar-service/internal/recurrence"
)

// CalendarRepository persists appointments and events for one owner.
// Dates and times are stored as their canonical "YYYY-MM-DD" / "HH:MM"
// strings so the wall-clock day the user picked survives storage
// untouched, regardless of server or session time zone.
type CalendarRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	OwnerID         string
	IdempotencyKey  string
	EntityID        string
	StatusCode      int
	ResponsePayload []byte
}

func NewCalendarRepository(pool *db.Pool) *CalendarRepository {
	return &CalendarRepository{pool: pool}
}

func (r *CalendarRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockIdempotencyKey claims an (owner, key) pair for the current
// transaction. The returned bool reports whether the key already existed;
// a finished prior attempt carries its recorded response for replay.
func (r *CalendarRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, ownerID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, ownerID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO calendar_idempotency_keys (owner_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (owner_id, idempotency_key) DO NOTHING
	`, ownerID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, ownerID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *CalendarRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, ownerID, key, entityID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE calendar_idempotency_keys
		SET entity_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE owner_id = $1 AND idempotency_key = $2
	`, ownerID, key, entityID, statusCode, response)
	return err
}

const appointmentColumns = `
	id, owner_id, doctor_name, specialty, date, time, location,
	duration_minutes, status, recurrence_pattern, recurrence_end_date,
	reminder_offset_minutes, reminder_channel, time_zone_name, color,
	created_at, updated_at, cancelled_at`

func (r *CalendarRepository) CreateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	pattern, endDate := encodeRecurrence(appt.Recurrence)
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(owner_id, doctor_name, specialty, date, time, location, duration_minutes, status,
			 recurrence_pattern, recurrence_end_date, reminder_offset_minutes, reminder_channel,
			 time_zone_name, color)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`, appt.OwnerID, appt.DoctorName, appt.Specialty, appt.Date.String(), appt.Time.String(),
		appt.Location, appt.DurationMinutes, appt.Status, pattern, endDate,
		appt.Reminder.OffsetMinutes, appt.Reminder.Channel, appt.TimeZoneName, appt.Color).
		Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return "", err
	}
	return appt.ID, nil
}

func (r *CalendarRepository) GetAppointment(ctx context.Context, ownerID, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	return scanAppointment(row)
}

func (r *CalendarRepository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, ownerID, id string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND owner_id = $2
		FOR UPDATE
	`, id, ownerID)
	return scanAppointment(row)
}

// UpdateAppointment rewrites the editable fields of an upcoming
// appointment. Status changes go through CancelAppointment instead.
func (r *CalendarRepository) UpdateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	pattern, endDate := encodeRecurrence(appt.Recurrence)
	return tx.QueryRow(ctx, `
		UPDATE appointments
		SET doctor_name = $3,
			specialty = $4,
			date = $5,
			time = $6,
			location = $7,
			duration_minutes = $8,
			recurrence_pattern = $9,
			recurrence_end_date = $10,
			reminder_offset_minutes = $11,
			reminder_channel = $12,
			time_zone_name = $13,
			color = $14,
			updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING updated_at
	`, appt.ID, appt.OwnerID, appt.DoctorName, appt.Specialty, appt.Date.String(), appt.Time.String(),
		appt.Location, appt.DurationMinutes, pattern, endDate,
		appt.Reminder.OffsetMinutes, appt.Reminder.Channel, appt.TimeZoneName, appt.Color).
		Scan(&appt.UpdatedAt)
}

func (r *CalendarRepository) CancelAppointment(ctx context.Context, tx pgx.Tx, ownerID, id string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING cancelled_at
	`, id, ownerID).Scan(&cancelledAt)
	return cancelledAt, err
}

// ListAppointments returns the owner's complete appointment history,
// cancelled ones included, ordered by day then start time. Per-owner
// volume is small in a personal calendar, so callers filter in memory.
func (r *CalendarRepository) ListAppointments(ctx context.Context, ownerID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1
		ORDER BY date ASC, time ASC, created_at ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt        model.Appointment
		dateStr     string
		timeStr     string
		pattern     *string
		endDateStr  *string
		cancelledAt *time.Time
	)
	err := row.Scan(
		&appt.ID,
		&appt.OwnerID,
		&appt.DoctorName,
		&appt.Specialty,
		&dateStr,
		&timeStr,
		&appt.Location,
		&appt.DurationMinutes,
		&appt.Status,
		&pattern,
		&endDateStr,
		&appt.Reminder.OffsetMinutes,
		&appt.Reminder.Channel,
		&appt.TimeZoneName,
		&appt.Color,
		&appt.CreatedAt,
		&appt.UpdatedAt,
		&cancelledAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt

	if appt.Date, err = caldate.ParseDate(dateStr); err != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s: stored date: %w", appt.ID, err)
	}
	if appt.Time, err = caldate.ParseClock(timeStr); err != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s: stored time: %w", appt.ID, err)
	}
	if appt.Recurrence, err = decodeRecurrence(pattern, endDateStr); err != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appt.ID, err)
	}
	return appt, nil
}

// encodeRecurrence flattens an optional rule into the two nullable
// columns. Both are NULL for one-off entries.
func encodeRecurrence(rule *recurrence.Rule) (pattern, endDate *string) {
	if rule == nil {
		return nil, nil
	}
	p := rule.Pattern
	pattern = &p
	if rule.EndDate != nil {
		e := rule.EndDate.String()
		endDate = &e
	}
	return pattern, endDate
}

func decodeRecurrence(pattern, endDate *string) (*recurrence.Rule, error) {
	if pattern == nil {
		return nil, nil
	}
	rule := &recurrence.Rule{Pattern: *pattern}
	if endDate != nil {
		end, err := caldate.ParseDate(*endDate)
		if err != nil {
			return nil, fmt.Errorf("stored recurrence end date: %w", err)
		}
		rule.EndDate = &end
	}
	return rule, nil
}

func (r *CalendarRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, ownerID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT owner_id::text,
			idempotency_key,
			COALESCE(entity_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM calendar_idempotency_keys
		WHERE owner_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, ownerID, key).Scan(
		&rec.OwnerID,
		&rec.IdempotencyKey,
		&rec.EntityID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
