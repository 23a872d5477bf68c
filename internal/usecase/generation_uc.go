// File: internal/usecase/generation_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"goalforge-async/internal/config"
	"goalforge-async/internal/domain"
	"goalforge-async/internal/domain/model"
	"goalforge-async/internal/domain/ports/adapter"
	"goalforge-async/internal/domain/ports/repository"
	derror "goalforge-async/internal/error"
	"goalforge-async/internal/infra/logging"
	"goalforge-async/internal/infra/metrics"
)

// Compile-time check
var _ GenerationUseCase = (*generationUC)(nil)

// GenerationUseCase drives the lifecycle of asynchronous generation jobs:
// creating them, reporting their state, cancelling running ones and retrying
// failed ones.
type GenerationUseCase interface {
	Start(ctx context.Context, userID string, typ model.GenerationType, params json.RawMessage) (*JobSnapshot, error)
	Status(ctx context.Context, userID, processID string) (*JobSnapshot, error)
	Cancel(ctx context.Context, userID, processID string) (*JobSnapshot, error)
	Retry(ctx context.Context, userID, processID string) (*JobSnapshot, error)
}

// JobSnapshot is the operation result handed to the transport layer.
type JobSnapshot struct {
	State                   *model.ProcessingState
	EstimatedCompletionTime time.Time
	Message                 string
}

// Locker serializes cancel/retry read-decide-write sequences per job id.
// Acquisition is best effort: a lock that cannot be taken never fails the
// client call, it only narrows the race window.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// CleanupFunc is invoked after a job reaches CANCELLED, for releasing any
// resources attached to the job. The default is a no-op.
type CleanupFunc func(ctx context.Context, state *model.ProcessingState) error

type generationUC struct {
	states  repository.ProcessingStateRepository
	engine  adapter.WorkflowEngine
	locker  Locker
	lockTTL time.Duration
	gen     config.GenerationConfig
	cleanup CleanupFunc
	log     *zerolog.Logger
}

func NewGenerationUseCase(
	states repository.ProcessingStateRepository,
	engine adapter.WorkflowEngine,
	locker Locker,
	lockTTL time.Duration,
	gen config.GenerationConfig,
	logger *zerolog.Logger,
) *generationUC {
	return &generationUC{
		states:  states,
		engine:  engine,
		locker:  locker,
		lockTTL: lockTTL,
		gen:     gen,
		cleanup: func(context.Context, *model.ProcessingState) error { return nil },
		log:     logger,
	}
}

// WithCleanup replaces the no-op cancellation cleanup hook.
func (u *generationUC) WithCleanup(fn CleanupFunc) *generationUC {
	if fn != nil {
		u.cleanup = fn
	}
	return u
}

// targetKeys maps each generation type to the parameter naming the domain
// entity the job augments.
var targetKeys = map[model.GenerationType]string{
	model.GenerationTypeSubGoal: "goalId",
	model.GenerationTypeAction:  "subGoalId",
	model.GenerationTypeTask:    "actionId",
}

func (u *generationUC) estimate(typ model.GenerationType) time.Duration {
	switch typ {
	case model.GenerationTypeSubGoal:
		return u.gen.SubGoalEstimate
	case model.GenerationTypeAction:
		return u.gen.ActionEstimate
	default:
		return u.gen.TaskEstimate
	}
}

// estimatedCompletion recomputes the ETA a client should poll against.
// Terminal jobs are already done, so their estimate is "now".
func (u *generationUC) estimatedCompletion(state *model.ProcessingState) time.Time {
	if state.Status.Terminal() {
		return time.Now().UTC()
	}
	return state.CreatedAt.Add(u.estimate(state.Type))
}

func (u *generationUC) Start(ctx context.Context, userID string, typ model.GenerationType, params json.RawMessage) (*JobSnapshot, error) {
	if userID == "" {
		return nil, derror.Authentication("")
	}
	if !typ.Valid() {
		return nil, derror.Validation(fmt.Sprintf("unknown generation type %q", typ))
	}
	targetID, err := extractTargetID(typ, params)
	if err != nil {
		return nil, err
	}

	state, err := model.NewProcessingState(userID, typ, targetID, params)
	if err != nil {
		return nil, derror.Validation(err.Error())
	}
	ctx = logging.WithProcessID(ctx, state.ID)
	if err := u.states.Create(ctx, nil, state); err != nil {
		return nil, derror.Database("could not create process record", err)
	}

	if err := u.startExecution(ctx, state); err != nil {
		// Two-step saga: without an execution the PENDING row is an orphan,
		// so compensate by removing it before surfacing the failure.
		if delErr := u.states.Delete(ctx, nil, state.ID, state.UserID); delErr != nil {
			logging.With(ctx, u.log).Error().Err(delErr).Msg("saga compensation failed, orphaned row remains")
		}
		return nil, derror.Workflow("could not start generation workflow", err)
	}

	metrics.IncJobStarted(string(typ))
	return &JobSnapshot{State: state, EstimatedCompletionTime: u.estimatedCompletion(state)}, nil
}

func (u *generationUC) Status(ctx context.Context, userID, processID string) (*JobSnapshot, error) {
	if err := validateProcessID(processID); err != nil {
		return nil, err
	}
	state, err := u.findOwned(ctx, userID, processID)
	if err != nil {
		return nil, err
	}
	return &JobSnapshot{State: state, EstimatedCompletionTime: u.estimatedCompletion(state)}, nil
}

func (u *generationUC) Cancel(ctx context.Context, userID, processID string) (*JobSnapshot, error) {
	if err := validateProcessID(processID); err != nil {
		return nil, err
	}
	ctx = logging.WithProcessID(ctx, processID)
	unlock := u.tryLock(ctx, processID)
	defer unlock()

	state, err := u.findOwned(ctx, userID, processID)
	if err != nil {
		return nil, err
	}
	if state.Status != model.StatusPending && state.Status != model.StatusProcessing {
		return nil, derror.CannotCancel(fmt.Sprintf("cannot cancel process in status %s", state.Status))
	}

	// Stop is best effort: the engine may have finished or never heard of the
	// execution. The store transition below is authoritative either way.
	if err := u.engine.StopExecution(ctx, state.ID, "cancelled by user"); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("workflow stop failed, proceeding with cancel")
	}

	if err := state.MarkCancelled("Process cancelled by user request"); err != nil {
		return nil, derror.CannotCancel(fmt.Sprintf("cannot cancel process in status %s", state.Status))
	}
	if err := u.states.UpdateStatus(ctx, nil, state); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Lost a race with a concurrent writer that reached a terminal
			// state first.
			return nil, derror.CannotCancel("process reached a terminal state concurrently")
		}
		return nil, derror.Database("could not update process record", err)
	}

	if err := u.cleanup(ctx, state); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("cancel cleanup failed")
	}

	metrics.IncJobCancelled(string(state.Type))
	return &JobSnapshot{
		State:                   state,
		EstimatedCompletionTime: u.estimatedCompletion(state),
		Message:                 "Process cancelled successfully",
	}, nil
}

func (u *generationUC) Retry(ctx context.Context, userID, processID string) (*JobSnapshot, error) {
	if err := validateProcessID(processID); err != nil {
		return nil, err
	}
	ctx = logging.WithProcessID(ctx, processID)
	unlock := u.tryLock(ctx, processID)
	defer unlock()

	state, err := u.findOwned(ctx, userID, processID)
	if err != nil {
		return nil, err
	}
	if state.Status != model.StatusFailed && state.Status != model.StatusTimeout {
		return nil, derror.CannotRetry(fmt.Sprintf("cannot retry process in status %s", state.Status))
	}
	if state.RetryCount >= model.MaxRetryCount {
		return nil, derror.RetryLimitExceeded(
			fmt.Sprintf("retry limit exceeded: %d of %d attempts used", state.RetryCount, model.MaxRetryCount),
		).WithDetails(map[string]any{
			"retryCount": state.RetryCount,
			"maxRetries": model.MaxRetryCount,
		})
	}

	next, err := state.RetryFrom()
	if err != nil {
		return nil, derror.Internal(err)
	}
	if err := u.states.Create(ctx, nil, next); err != nil {
		return nil, derror.Database("could not create retry record", err)
	}
	if err := u.startExecution(ctx, next); err != nil {
		if delErr := u.states.Delete(ctx, nil, next.ID, next.UserID); delErr != nil {
			logging.With(ctx, u.log).Error().Err(delErr).Str("retry_process_id", next.ID).Msg("saga compensation failed, orphaned row remains")
		}
		return nil, derror.Workflow("could not start retry workflow", err)
	}

	metrics.IncJobRetried(string(next.Type))
	return &JobSnapshot{State: next, EstimatedCompletionTime: u.estimatedCompletion(next)}, nil
}

// startExecution launches the engine execution named by the row id. The input
// carries the full persisted parameter bag so a retried attempt reconstructs
// exactly what the original Start call requested.
func (u *generationUC) startExecution(ctx context.Context, state *model.ProcessingState) error {
	input, err := json.Marshal(map[string]any{
		"processId": state.ID,
		"userId":    state.UserID,
		"type":      state.Type,
		"params":    state.Params,
	})
	if err != nil {
		return err
	}
	return u.engine.StartExecution(ctx, state.ID, input)
}

// findOwned hides the existence of other users' rows: a row owned by someone
// else and a row that does not exist yield the identical error.
func (u *generationUC) findOwned(ctx context.Context, userID, processID string) (*model.ProcessingState, error) {
	if userID == "" {
		return nil, derror.Authentication("")
	}
	state, err := u.states.FindByIDAndUser(ctx, nil, processID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, derror.NotFound("")
		}
		return nil, derror.Database("could not read process record", err)
	}
	return state, nil
}

func (u *generationUC) tryLock(ctx context.Context, processID string) func() {
	if u.locker == nil {
		return func() {}
	}
	key := "genlock:" + processID
	token, err := u.locker.TryLock(ctx, key, u.lockTTL)
	if err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("job lock not acquired, proceeding unlocked")
		return func() {}
	}
	return func() {
		if err := u.locker.Unlock(ctx, key, token); err != nil {
			logging.With(ctx, u.log).Warn().Err(err).Msg("job unlock failed")
		}
	}
}

// validateProcessID rejects anything that is not a canonical UUID string
// before any store lookup happens.
func validateProcessID(id string) error {
	if len(id) != 36 {
		return derror.Validation("processId must be a valid UUID")
	}
	if _, err := uuid.Parse(id); err != nil {
		return derror.Validation("processId must be a valid UUID")
	}
	return nil
}

// extractTargetID validates the parameter bag shape for the given type and
// returns the referenced entity id.
func extractTargetID(typ model.GenerationType, params json.RawMessage) (string, error) {
	key := targetKeys[typ]
	if len(params) == 0 {
		return "", derror.Validation(fmt.Sprintf("params.%s is required", key))
	}
	var bag map[string]json.RawMessage
	if err := json.Unmarshal(params, &bag); err != nil {
		return "", derror.Validation("params must be a JSON object")
	}
	raw, ok := bag[key]
	if !ok {
		return "", derror.Validation(fmt.Sprintf("params.%s is required", key))
	}
	var target string
	if err := json.Unmarshal(raw, &target); err != nil || target == "" {
		return "", derror.Validation(fmt.Sprintf("params.%s must be a non-empty string", key))
	}
	return target, nil
}
