package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrEventConflict    = errors.New("event already exists")
	ErrStoreUnavailable = errors.New("event store unavailable")
)

// ValidationError lists the fields of an event submission that were rejected.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}

	return "invalid event: " + strings.Join(parts, "; ")
}
