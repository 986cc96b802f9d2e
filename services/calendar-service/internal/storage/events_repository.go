package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
)

const eventColumns = `
	id, owner_id, title, description, date, time, location, category,
	is_all_day, status, recurrence_pattern, recurrence_end_date, color,
	created_at, updated_at`

func (r *CalendarRepository) CreateEvent(ctx context.Context, tx pgx.Tx, evt *model.Event) (string, error) {
	pattern, endDate := encodeRecurrence(evt.Recurrence)
	err := tx.QueryRow(ctx, `
		INSERT INTO calendar_events
			(owner_id, title, description, date, time, location, category, is_all_day,
			 status, recurrence_pattern, recurrence_end_date, color)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`, evt.OwnerID, evt.Title, evt.Description, evt.Date.String(), encodeClock(evt.Time),
		evt.Location, evt.Category, evt.IsAllDay, evt.Status, pattern, endDate, evt.Color).
		Scan(&evt.ID, &evt.CreatedAt, &evt.UpdatedAt)
	if err != nil {
		return "", err
	}
	return evt.ID, nil
}

func (r *CalendarRepository) GetEvent(ctx context.Context, ownerID, id string) (model.Event, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM calendar_events
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	return scanEvent(row)
}

func (r *CalendarRepository) GetEventForUpdate(ctx context.Context, tx pgx.Tx, ownerID, id string) (model.Event, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM calendar_events
		WHERE id = $1 AND owner_id = $2
		FOR UPDATE
	`, id, ownerID)
	return scanEvent(row)
}

func (r *CalendarRepository) UpdateEvent(ctx context.Context, tx pgx.Tx, evt *model.Event) error {
	pattern, endDate := encodeRecurrence(evt.Recurrence)
	return tx.QueryRow(ctx, `
		UPDATE calendar_events
		SET title = $3,
			description = $4,
			date = $5,
			time = $6,
			location = $7,
			category = $8,
			is_all_day = $9,
			recurrence_pattern = $10,
			recurrence_end_date = $11,
			color = $12,
			updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING updated_at
	`, evt.ID, evt.OwnerID, evt.Title, evt.Description, evt.Date.String(), encodeClock(evt.Time),
		evt.Location, evt.Category, evt.IsAllDay, pattern, endDate, evt.Color).
		Scan(&evt.UpdatedAt)
}

// SetEventStatus moves an event to completed or cancelled. Terminality is
// enforced by the handler, which holds the row FOR UPDATE first.
func (r *CalendarRepository) SetEventStatus(ctx context.Context, tx pgx.Tx, ownerID, id, status string) (time.Time, error) {
	var updatedAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE calendar_events
		SET status = $3,
			updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING updated_at
	`, id, ownerID, status).Scan(&updatedAt)
	return updatedAt, err
}

// DeleteEvent removes the row permanently. Only events support this;
// appointments are status-transitioned instead.
func (r *CalendarRepository) DeleteEvent(ctx context.Context, tx pgx.Tx, ownerID, id string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM calendar_events
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListEvents returns the owner's complete event list ordered by day, with
// all-day entries ahead of timed ones on the same day.
func (r *CalendarRepository) ListEvents(ctx context.Context, ownerID string) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM calendar_events
		WHERE owner_id = $1
		ORDER BY date ASC, time ASC NULLS FIRST, created_at ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

func scanEvent(row pgx.Row) (model.Event, error) {
	var (
		evt        model.Event
		dateStr    string
		timeStr    *string
		pattern    *string
		endDateStr *string
		createdAt  time.Time
		updatedAt  time.Time
	)
	err := row.Scan(
		&evt.ID,
		&evt.OwnerID,
		&evt.Title,
		&evt.Description,
		&dateStr,
		&timeStr,
		&evt.Location,
		&evt.Category,
		&evt.IsAllDay,
		&evt.Status,
		&pattern,
		&endDateStr,
		&evt.Color,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return model.Event{}, err
	}
	evt.CreatedAt = createdAt
	evt.UpdatedAt = updatedAt

	if evt.Date, err = caldate.ParseDate(dateStr); err != nil {
		return model.Event{}, fmt.Errorf("event %s: stored date: %w", evt.ID, err)
	}
	if timeStr != nil {
		clock, err := caldate.ParseClock(*timeStr)
		if err != nil {
			return model.Event{}, fmt.Errorf("event %s: stored time: %w", evt.ID, err)
		}
		evt.Time = &clock
	}
	if evt.Recurrence, err = decodeRecurrence(pattern, endDateStr); err != nil {
		return model.Event{}, fmt.Errorf("event %s: %w", evt.ID, err)
	}
	return evt, nil
}

// encodeClock flattens an optional time of day into a nullable column;
// NULL marks an all-day entry.
func encodeClock(t *caldate.TimeOfDay) *string {
	if t == nil {
		return nil
	}
	s := t.String()
	return &s
}
