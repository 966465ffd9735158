package syncer

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrOffline = errors.New("device is offline")

// TransientError is a sync failure worth retrying (network, timeout, remote outage).
// The queue is left as it was.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "sync failed, will retry: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// RejectedError means the remote refused the batch itself (malformed or invalid).
// Retrying the same batch will not help; the queue is kept for inspection.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("sync rejected by remote (status %d): %s", e.Status, e.Message)
}

func IsTransient(err error) bool {
	var tErr *TransientError
	return errors.As(err, &tErr)
}

func IsRejected(err error) bool {
	var rErr *RejectedError
	return errors.As(err, &rErr)
}
