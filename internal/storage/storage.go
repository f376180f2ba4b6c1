// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/uponlylabs/uponly-engine/internal/storage/models"
)

// Storage is the engine's operation journal: one row per committed operation.
type Storage interface {
	SaveOperation(ctx context.Context, op *models.Operation) error
	GetOperation(ctx context.Context, id uint) (*models.Operation, error)
	ListOperations(ctx context.Context, user string, limit, offset int) ([]*models.Operation, error)

	RunMigrations() error
	Close() error
}
