package stagegraph

import (
	"errors"
	"fmt"
	"strings"

	"scenecraft/internal/stage"
)

var (
	ErrInvalidGraph = errors.New("invalid stage graph")
	ErrCycle        = errors.New("stage graph cycle")
)

// GraphError reports a declaration problem found while building a graph.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(path []stage.ID) error {
	parts := make([]string, 0, len(path))
	for _, id := range path {
		parts = append(parts, string(id))
	}
	return &GraphError{Kind: ErrCycle, Msg: strings.Join(parts, " -> ")}
}
