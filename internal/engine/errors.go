package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEngineRuntime is the fatal initialization failure: no SQL driver
	// for the embedded engine is available
	ErrNoEngineRuntime = errors.New("embedded engine runtime unavailable")
	// ErrNotInitialized is returned by calls made before Initialize succeeded
	// or after Terminate
	ErrNotInitialized = errors.New("engine not initialized")
	// ErrTxDone is returned when a Tx is used after its transaction ended
	ErrTxDone = errors.New("transaction has already been committed or rolled back")
)

// TransactionError wraps the error that aborted a transaction body or its
// commit. Rollback failures are never reported through it.
type TransactionError struct {
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction rolled back: %v", e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
