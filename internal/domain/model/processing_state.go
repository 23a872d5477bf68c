package model

import (
	"encoding/json"
	"time"

	"goalforge-async/internal/domain"

	"github.com/google/uuid"
)

// GenerationType identifies which level of the goal hierarchy a job generates
// content for.
type GenerationType string

const (
	GenerationTypeSubGoal GenerationType = "SUBGOAL_GENERATION"
	GenerationTypeAction  GenerationType = "ACTION_GENERATION"
	GenerationTypeTask    GenerationType = "TASK_GENERATION"
)

func (t GenerationType) Valid() bool {
	switch t {
	case GenerationTypeSubGoal, GenerationTypeAction, GenerationTypeTask:
		return true
	default:
		return false
	}
}

// ProcessingStatus is the closed set of job lifecycle states.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "PENDING"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusCompleted  ProcessingStatus = "COMPLETED"
	StatusFailed     ProcessingStatus = "FAILED"
	StatusTimeout    ProcessingStatus = "TIMEOUT"
	StatusCancelled  ProcessingStatus = "CANCELLED"
)

func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether s permits no further transitions.
func (s ProcessingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	default:
		return false
	}
}

// transitions is the full directed graph of legal status changes. Every write
// path that changes a status must consult CanTransition so an illegal move
// fails fast instead of silently corrupting a row.
var transitions = map[ProcessingStatus][]ProcessingStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled},
}

// CanTransition reports whether moving a job from `from` to `to` is legal.
func CanTransition(from, to ProcessingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MaxRetryCount bounds how many times a failed lineage may be retried.
const MaxRetryCount = 3

// ProcessingError is the structured error stored on a terminally failed,
// timed-out or cancelled row and returned to clients verbatim.
type ProcessingError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ProcessingState is one attempt at running an asynchronous generation job.
// A Retry produces a fresh row with a fresh ID; rows are never deleted once
// an execution has been launched for them.
type ProcessingState struct {
	ID          string
	UserID      string
	Type        GenerationType
	TargetID    string
	Params      json.RawMessage
	Status      ProcessingStatus
	Progress    int
	Result      json.RawMessage
	Error       *ProcessingError
	RetryCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NewProcessingState creates a PENDING row for a fresh Start call.
func NewProcessingState(userID string, typ GenerationType, targetID string, params json.RawMessage) (*ProcessingState, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !typ.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &ProcessingState{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		TargetID:  targetID,
		Params:    params,
		Status:    StatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// RetryFrom derives the next attempt in a lineage: same owner, type, target
// and parameter bag, fresh id, retry count bumped.
func (p *ProcessingState) RetryFrom() (*ProcessingState, error) {
	if p.Status != StatusFailed && p.Status != StatusTimeout {
		return nil, domain.ErrInvalidTransition
	}
	if p.RetryCount >= MaxRetryCount {
		return nil, domain.ErrInvalidArgument
	}
	next, err := NewProcessingState(p.UserID, p.Type, p.TargetID, p.Params)
	if err != nil {
		return nil, err
	}
	next.RetryCount = p.RetryCount + 1
	return next, nil
}

// MarkCancelled moves the row to its CANCELLED terminal state.
func (p *ProcessingState) MarkCancelled(reason string) error {
	if !CanTransition(p.Status, StatusCancelled) {
		return domain.ErrInvalidTransition
	}
	now := time.Now().UTC()
	p.Status = StatusCancelled
	p.Error = &ProcessingError{Code: "CANCELLED", Message: reason, Retryable: false}
	p.UpdatedAt = now
	p.CompletedAt = &now
	return nil
}

func (p *ProcessingState) IsZero() bool { return p == nil || p.ID == "" }
