package model

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an operation targets a stale version or an
	// entity whose state does not allow it.
	ErrConflict = errors.New("conflict")

	// ErrInvitationExpired is a NotFound condition: expired codes are treated
	// as if they never existed.
	ErrInvitationExpired = errors.Wrap(ErrNotFound, "invitation code expired")

	// ErrAlreadyClaimed is a Conflict condition.
	ErrAlreadyClaimed = errors.Wrap(ErrConflict, "invitation code already claimed")
)

// ValidationError carries every issue found while validating an entity.
type ValidationError struct {
	Messages []string
}

func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// AsValidationError extracts a ValidationError from the chain of err.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// checker accumulates validation messages.
type checker struct {
	messages []string
}

func (c *checker) check(ok bool, format string, args ...interface{}) {
	if !ok {
		c.messages = append(c.messages, fmt.Sprintf(format, args...))
	}
}

func (c *checker) merge(messages []string) {
	c.messages = append(c.messages, messages...)
}

func (c *checker) err() error {
	if len(c.messages) == 0 {
		return nil
	}
	return NewValidationError(c.messages...)
}
