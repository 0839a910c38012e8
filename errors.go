package mandel

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig matches every *ConfigError.
	ErrInvalidConfig = errors.New("invalid render configuration")

	// ErrRenderActive is returned when a render is started, or the viewport changed,
	// while another render of the same Scheduler is still running.
	ErrRenderActive = errors.New("render in progress")
)

// ConfigError rejects a viewport or option before any worker starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// WorkerFault is a panic recovered inside a render worker.
// The render it happened in ends Cancelled.
type WorkerFault struct {
	Worker int
	Value  any
	Stack  []byte
}

func (e *WorkerFault) Error() string {
	return fmt.Sprintf("worker %d: panic: %v", e.Worker, e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *WorkerFault) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
