package storage

import (
	"context"
	"encoding/json"

	"github.com/carebook-app/carebook/libs/db"
)

// Notification is one delivery-log row: a single attempt on a single
// channel. A fan-out reminder writes one row per expanded channel.
type Notification struct {
	AppointmentID string
	OwnerID       string
	Channel       string
	Recipient     string
	Payload       map[string]any
	Status        string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, owner_id, channel, recipient, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.AppointmentID, n.OwnerID, n.Channel, n.Recipient, payload, n.Status)
	return err
}
