package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrDependencyNotReady = errors.New("dependency not ready")
	ErrRunInProgress      = errors.New("run in progress")
	ErrProviderTransient  = errors.New("provider transient failure")
	ErrProviderRejected   = errors.New("provider rejected request")
	ErrPipelineIncomplete = errors.New("pipeline incomplete")
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
	ErrNotFound           = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrProviderTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Marker returns the sentinel carried by err, or nil when err carries none.
func Marker(err error) error {
	for _, marker := range []error{
		ErrDependencyNotReady,
		ErrRunInProgress,
		ErrProviderTransient,
		ErrProviderRejected,
		ErrPipelineIncomplete,
		ErrValidation,
		ErrConfiguration,
		ErrNotFound,
	} {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return nil
}

// MarkerName returns a short snake_case label for the error's marker, used in
// API payloads and CLI output.
func MarkerName(err error) string {
	switch Marker(err) {
	case ErrDependencyNotReady:
		return "dependency_not_ready"
	case ErrRunInProgress:
		return "run_in_progress"
	case ErrProviderTransient:
		return "provider_transient"
	case ErrProviderRejected:
		return "provider_rejected"
	case ErrPipelineIncomplete:
		return "pipeline_incomplete"
	case ErrValidation:
		return "validation"
	case ErrConfiguration:
		return "configuration"
	case ErrNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error to the status code the API reports for it.
func HTTPStatus(err error) int {
	switch Marker(err) {
	case ErrDependencyNotReady, ErrRunInProgress, ErrPipelineIncomplete:
		return http.StatusConflict
	case ErrProviderTransient:
		return http.StatusBadGateway
	case ErrProviderRejected:
		return http.StatusUnprocessableEntity
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
