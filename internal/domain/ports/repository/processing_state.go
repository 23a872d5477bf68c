package repository

import (
	"context"

	"goalforge-async/internal/domain/model"
)

// ProcessingStateRepository persists generation job rows. Every method that
// reads or mutates an existing row is scoped by owner: a row belonging to a
// different user is indistinguishable from a missing one (domain.ErrNotFound).
type ProcessingStateRepository interface {
	// Create inserts a fresh row. The row's status must be PENDING.
	Create(ctx context.Context, tx Tx, state *model.ProcessingState) error

	// FindByIDAndUser returns the row with the given id owned by userID.
	FindByIDAndUser(ctx context.Context, tx Tx, id, userID string) (*model.ProcessingState, error)

	// UpdateStatus moves a row to a new status, writing the optional error
	// payload and completedAt for terminal states. Implementations must reject
	// transitions not allowed by model.CanTransition with
	// domain.ErrInvalidTransition.
	UpdateStatus(ctx context.Context, tx Tx, state *model.ProcessingState) error

	// Delete removes a row. Used only to compensate a failed start saga,
	// before any execution exists for the row.
	Delete(ctx context.Context, tx Tx, id, userID string) error
}
