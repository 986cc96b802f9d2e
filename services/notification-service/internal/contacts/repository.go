package contacts

import (
	"context"

	"github.com/carebook-app/carebook/libs/db"
	"github.com/jackc/pgx/v5"
)

// Contact is the local projection of an owner's reachable identity,
// maintained from identity.owner.registered.v1 events. Reminders are
// addressed from here so delivery never has to call another service.
type Contact struct {
	OwnerID     string
	Email       string
	DisplayName string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Upsert(ctx context.Context, c Contact) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO owner_contacts (owner_id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id) DO UPDATE
		SET email = EXCLUDED.email,
		    display_name = EXCLUDED.display_name,
		    updated_at = now()
	`, c.OwnerID, c.Email, c.DisplayName)
	return err
}

func (r *Repository) GetByOwner(ctx context.Context, ownerID string) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT owner_id, email, display_name
		FROM owner_contacts
		WHERE owner_id = $1
	`, ownerID).Scan(&c.OwnerID, &c.Email, &c.DisplayName)
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}

func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}
