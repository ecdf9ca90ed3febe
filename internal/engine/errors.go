package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"playbook/internal/repo"
)

// ErrConflict marks requests that clash with stored state: duplicate names,
// stale versions, or deleting something still referenced.
var ErrConflict = errors.New("conflict")

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// notFound wraps repo.ErrNotFound with the entity it refers to and passes
// any other error through.
func notFound(err error, kind string, id any) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%s %v: %w", kind, id, repo.ErrNotFound)
	}
	return err
}

// ParsePlayID parses a decimal play id.
func ParsePlayID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, invalid("play_id", "invalid play id format %q", raw)
	}
	return id, nil
}
