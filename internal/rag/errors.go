package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks malformed caller input. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRetrievalUnavailable marks an unreachable embedding or store backend,
	// as opposed to a search that legitimately found nothing.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrBudgetExceeded is recorded on a Prompt when snippets existed but none
	// fit the token budget. Assemble never returns it.
	ErrBudgetExceeded = errors.New("no snippet fits the context budget")
)

// InvalidArgumentError describes which input was rejected.
type InvalidArgumentError struct {
	Field   string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrInvalidArgument) true.
func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

func invalidArgument(field, message string) error {
	return &InvalidArgumentError{Field: field, Message: message}
}
