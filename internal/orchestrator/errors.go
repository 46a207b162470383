package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"scenecraft/internal/provider"
	"scenecraft/internal/services"
	"scenecraft/internal/stage"
)

// RunError describes why a run did not commit. Marker is one of the services
// sentinels, or nil when the run was cancelled. Kind and Provider are set only
// for provider failures.
type RunError struct {
	Stage      stage.ID
	Marker     error
	Dependency stage.ID
	Attempts   int
	Kind       provider.Kind
	Provider   string
	Message    string
	Err        error
}

func (e *RunError) Error() string {
	parts := make([]string, 0, 5)
	if e.Marker != nil {
		parts = append(parts, e.Marker.Error())
	} else if e.Cancelled() {
		parts = append(parts, "run cancelled")
	}
	parts = append(parts, string(e.Stage))
	if e.Dependency != "" {
		parts = append(parts, "dependency "+string(e.Dependency))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("after %d attempts", e.Attempts))
	}
	out := strings.Join(parts, ": ")
	if e.Err != nil {
		out += ": " + e.Err.Error()
	}
	return out
}

// Unwrap exposes both the marker and the cause to errors.Is and errors.As.
func (e *RunError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Retryable reports whether running the stage again unchanged may succeed.
func (e *RunError) Retryable() bool {
	return errors.Is(e.Marker, services.ErrProviderTransient)
}

// Cancelled reports whether the run stopped because its context ended.
func (e *RunError) Cancelled() bool {
	return e.Marker == nil && e.Err != nil && isContextErr(e.Err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Hint suggests what the caller should do next.
func Hint(err error) string {
	var runErr *RunError
	if errors.As(err, &runErr) && runErr.Cancelled() {
		return "run again when ready; nothing was committed"
	}
	switch services.Marker(err) {
	case services.ErrDependencyNotReady:
		if runErr != nil && runErr.Dependency != "" {
			return fmt.Sprintf("run %s first", runErr.Dependency)
		}
		return "run the upstream stages first"
	case services.ErrRunInProgress:
		return "wait for the current run to finish"
	case services.ErrProviderTransient:
		return "retry the stage later"
	case services.ErrProviderRejected:
		return "edit the stage inputs and run again"
	case services.ErrConfiguration:
		return "configure the provider credentials and restart"
	case services.ErrValidation:
		return "check the stage name and override keys"
	default:
		return "check logs for details"
	}
}
