package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"goalforge-async/internal/domain"
	"goalforge-async/internal/domain/model"
	"goalforge-async/internal/domain/ports/repository"
)

var _ repository.ProcessingStateRepository = (*processingStateRepo)(nil)

type processingStateRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewProcessingStateRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *processingStateRepo {
	return &processingStateRepo{pool: pool, tm: tm}
}

func (r *processingStateRepo) Create(ctx context.Context, tx repository.Tx, state *model.ProcessingState) error {
	if state.Status != model.StatusPending {
		return domain.ErrInvalidArgument
	}
	var errJSON []byte
	if state.Error != nil {
		b, err := json.Marshal(state.Error)
		if err != nil {
			return err
		}
		errJSON = b
	}

	const q = `
INSERT INTO processing_states
  (id, user_id, type, target_id, params, status, progress, result, error, retry_count, created_at, updated_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`

	_, err := execSQL(ctx, r.pool, tx, q,
		state.ID, state.UserID, string(state.Type), nullStr(state.TargetID), rawOrNil(state.Params),
		string(state.Status), state.Progress, rawOrNil(state.Result), errJSON,
		state.RetryCount, state.CreatedAt, state.UpdatedAt, state.CompletedAt)
	return err
}

func (r *processingStateRepo) FindByIDAndUser(ctx context.Context, tx repository.Tx, id, userID string) (*model.ProcessingState, error) {
	const q = `
SELECT id, user_id, type, target_id, params, status, progress, result, error, retry_count, created_at, updated_at, completed_at
FROM processing_states
WHERE id = $1 AND user_id = $2;`

	row, err := pickRow(ctx, r.pool, tx, q, id, userID)
	if err != nil {
		return nil, err
	}

	var (
		st       model.ProcessingState
		typStr   string
		statStr  string
		targetID *string
		params   []byte
		result   []byte
		errJSON  []byte
	)
	err = row.Scan(&st.ID, &st.UserID, &typStr, &targetID, &params, &statStr, &st.Progress,
		&result, &errJSON, &st.RetryCount, &st.CreatedAt, &st.UpdatedAt, &st.CompletedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	st.Type = model.GenerationType(typStr)
	st.Status = model.ProcessingStatus(statStr)
	if targetID != nil {
		st.TargetID = *targetID
	}
	st.Params = json.RawMessage(params)
	st.Result = json.RawMessage(result)
	if len(errJSON) > 0 {
		var pe model.ProcessingError
		if err := json.Unmarshal(errJSON, &pe); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		st.Error = &pe
	}
	return &st, nil
}

// UpdateStatus writes the row's new status, error payload and timestamps.
// The read-check-write sequence runs inside a transaction (opened here when
// the caller did not supply one), and the WHERE clause re-checks the previous
// status so a concurrent writer that already moved the row causes this update
// to match nothing.
func (r *processingStateRepo) UpdateStatus(ctx context.Context, tx repository.Tx, state *model.ProcessingState) error {
	if tx != nil {
		return r.updateStatusTx(ctx, tx, state)
	}
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return r.updateStatusTx(ctx, tx, state)
	})
}

func (r *processingStateRepo) updateStatusTx(ctx context.Context, tx repository.Tx, state *model.ProcessingState) error {
	prev, err := r.FindByIDAndUser(ctx, tx, state.ID, state.UserID)
	if err != nil {
		return err
	}
	if prev.Status != state.Status && !model.CanTransition(prev.Status, state.Status) {
		return domain.ErrInvalidTransition
	}
	if state.Progress < prev.Progress {
		return domain.ErrInvalidArgument
	}

	var errJSON []byte
	if state.Error != nil {
		b, err := json.Marshal(state.Error)
		if err != nil {
			return err
		}
		errJSON = b
	}
	state.UpdatedAt = time.Now().UTC()

	const q = `
UPDATE processing_states
SET status = $3, progress = $4, result = $5, error = $6, updated_at = $7, completed_at = $8
WHERE id = $1 AND user_id = $2 AND status = $9;`

	cmd, err := execSQL(ctx, r.pool, tx, q,
		state.ID, state.UserID, string(state.Status), state.Progress,
		rawOrNil(state.Result), errJSON, state.UpdatedAt, state.CompletedAt, string(prev.Status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *processingStateRepo) Delete(ctx context.Context, tx repository.Tx, id, userID string) error {
	const q = `DELETE FROM processing_states WHERE id = $1 AND user_id = $2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func rawOrNil(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
