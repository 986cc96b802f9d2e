package storage

import (
	"context"

	"github.com/carebook-app/carebook/libs/db"
	"github.com/jackc/pgx/v5"
)

type Owner struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
}

type OwnerRepository struct {
	pool *db.Pool
}

func NewOwnerRepository(pool *db.Pool) *OwnerRepository {
	return &OwnerRepository{pool: pool}
}

func (r *OwnerRepository) Create(ctx context.Context, owner Owner) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO owners (id, email, display_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, owner.ID, owner.Email, owner.DisplayName, owner.PasswordHash, owner.Role)
	return err
}

func (r *OwnerRepository) CreateTx(ctx context.Context, tx pgx.Tx, owner Owner) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO owners (id, email, display_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, owner.ID, owner.Email, owner.DisplayName, owner.PasswordHash, owner.Role)
	return err
}

func (r *OwnerRepository) GetByEmail(ctx context.Context, email string) (Owner, error) {
	var owner Owner
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, role
		FROM owners
		WHERE email = $1
	`, email).Scan(&owner.ID, &owner.Email, &owner.DisplayName, &owner.PasswordHash, &owner.Role)
	if err != nil {
		return Owner{}, err
	}
	return owner, nil
}

func (r *OwnerRepository) GetByID(ctx context.Context, id string) (Owner, error) {
	var owner Owner
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, role
		FROM owners
		WHERE id = $1
	`, id).Scan(&owner.ID, &owner.Email, &owner.DisplayName, &owner.PasswordHash, &owner.Role)
	if err != nil {
		return Owner{}, err
	}
	return owner, nil
}

func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}
