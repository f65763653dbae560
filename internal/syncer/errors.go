package syncer

import (
	"errors"
	"fmt"
)

// ErrNoClient is returned when an operation requires a ledger client but
// no session has bound one yet.
var ErrNoClient = errors.New("no ledger client bound")

// ErrNotAuthenticated is returned when an operation requires an
// authenticated principal.
var ErrNotAuthenticated = errors.New("not authenticated")

// ValidationError reports a local pre-call rejection. It never reaches the
// remote service.
type ValidationError struct {
	Op     string // "transfer", "create_token", "mint"
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Reason)
}

func validationErr(op, format string, args ...interface{}) error {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
