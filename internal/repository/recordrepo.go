package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/prodboard/prodboard/internal/model"
)

// RecordRepository provides versioned access to planning records.
type RecordRepository interface {
	// Create inserts a new record at record version 1.
	Create(ctx context.Context, rec model.Record) (*model.Record, error)

	// Get returns a single live record by kind and id.
	Get(ctx context.Context, kind model.Kind, id uuid.UUID) (*model.Record, error)

	// List returns all live records of a kind ordered by last update.
	List(ctx context.Context, kind model.Kind) ([]model.Record, error)

	// Update runs mutate against the current row state under a row lock and
	// persists the returned record. A mutate error rolls back and is returned
	// unchanged, so no second writer's commit can interleave between the read
	// and the write.
	Update(ctx context.Context, kind model.Kind, id uuid.UUID, mutate func(model.Record) (model.Record, error)) (*model.Record, error)

	// Delete sets tombstone on a record (record version++) with base version check.
	Delete(ctx context.Context, kind model.Kind, id uuid.UUID, baseVer int64) (int64, error)
}
