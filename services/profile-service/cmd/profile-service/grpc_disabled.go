//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/carebook-app/carebook/libs/db"
	"github.com/carebook-app/carebook/services/profile-service/internal/storage"
)

func startGrpcServer(_ context.Context, _ *slog.Logger, _ *db.Pool, _ *storage.Repository) error {
	return nil
}
