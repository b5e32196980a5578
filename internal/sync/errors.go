package sync

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrAlreadyRunning rejects a concurrent sync pass.
var ErrAlreadyRunning = errors.New("sync is already running")

// ErrOffline is fatal for a pass; nothing is attempted.
var ErrOffline = errors.New("network is offline")

// ConflictError is a version-conflict rejection (HTTP 409) carrying the
// current remote record. Recoverable via the resolver.
type ConflictError struct {
	OperationID string
	Remote      json.RawMessage
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict for operation %s", e.OperationID)
}

// TransportError is any other non-2xx response or network-level failure.
// Recoverable via exponential-backoff retry up to the operation's budget.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
