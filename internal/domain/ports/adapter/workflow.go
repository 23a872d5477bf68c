package adapter

import (
	"context"
	"encoding/json"
)

// WorkflowEngine is the start/stop/inspect contract of the external
// orchestration engine that actually runs the generation pipeline. Executions
// are keyed by name; the job id is used as the name so that duplicate starts
// for the same job are a no-op on the engine side.
type WorkflowEngine interface {
	// StartExecution launches an execution. Starting a name that is already
	// running is not an error.
	StartExecution(ctx context.Context, name string, input json.RawMessage) error

	// StopExecution requests a running execution to stop. Stopping an unknown
	// or already-finished execution is not an error.
	StopExecution(ctx context.Context, name, cause string) error

	Name() string
}
