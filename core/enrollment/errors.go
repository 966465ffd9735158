package enrollment

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// errors
	ErrSessionClosed = errors.New("enrollment session is closed")
	ErrCancelled     = errors.New("enrollment was cancelled")
	ErrInProgress    = errors.New("enrollment is still in progress")
)

// CaptureError reports an enrollment that ended without a usable face.
// Reason is the last rejection seen and carries the guidance to show the subject.
type CaptureError struct {
	Reason   Reason
	Attempts int
	Err      error
}

func (e *CaptureError) Error() string {
	msg := fmt.Sprintf("face capture failed after %d attempts: %s", e.Attempts, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Guidance is the message to show the subject before they try again.
func (e *CaptureError) Guidance() string { return e.Reason.Guidance() }

// IsCaptureError reports whether err (or its cause) is a *CaptureError.
func IsCaptureError(err error) bool {
	var cErr *CaptureError
	return errors.As(err, &cErr)
}
