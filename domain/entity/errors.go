package entity

import (
	"errors"
	"fmt"
)

// Audit errors
var (
	ErrInvalidAuditInput = errors.New("audit input contains an invalid post entry")
	ErrStoreUnavailable  = errors.New("search index is unavailable")
	ErrMalformedEnvelope = errors.New("search index returned a malformed response envelope")
)

// Repair errors
var (
	ErrAlreadyRunning  = errors.New("a full sync is already running")
	ErrSyncUnavailable = errors.New("replication pipeline refused to start a full sync")
)

// DrainError reports a failed replication drive step. It aborts the repair;
// the previously captured settings are restored before it surfaces.
type DrainError struct {
	Code    string
	Message string
}

// Error implements the error interface
func (e *DrainError) Error() string {
	return fmt.Sprintf("drain failed (%s): %s", e.Code, e.Message)
}

// NewDrainError creates a drain error with the given code and message.
func NewDrainError(code, message string) *DrainError {
	return &DrainError{Code: code, Message: message}
}

// AsDrainError extracts a DrainError from an error chain.
func AsDrainError(err error) (*DrainError, bool) {
	var de *DrainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
