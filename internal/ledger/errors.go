package ledger

import "fmt"

// RemoteCallError reports the failure of a single ledger-service call.
// It is isolated to the operation that triggered it; collection refreshes
// degrade the affected item instead of aborting siblings.
type RemoteCallError struct {
	Op  string // ledger operation name, e.g. "balance_of"
	Err error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

// remoteErr wraps err into a *RemoteCallError unless it already is one.
func remoteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*RemoteCallError); ok {
		return err
	}
	return &RemoteCallError{Op: op, Err: err}
}
