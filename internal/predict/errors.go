package predict

import (
	"errors"
	"fmt"
)

// ErrorLabel is the label reported to the UI when no usable prediction exists for a window.
const ErrorLabel = "error"

var (
	// ErrUnavailable matches every *Error: no usable prediction for this window.
	ErrUnavailable = errors.New("prediction unavailable")

	// ErrWindowSize is returned when a window does not hold exactly the configured number of frames.
	ErrWindowSize = errors.New("window size mismatch")
)

// Class tells apart the ways a prediction exchange can fail.
type Class string

const (
	// ClassTransport means the endpoint could not be reached or did not answer in time.
	ClassTransport Class = "transport"
	// ClassRejected means the endpoint answered with a non-2xx status or an error payload.
	ClassRejected Class = "rejected"
	// ClassMalformed means a 2xx response carried no usable label.
	ClassMalformed Class = "malformed"
)

// Error describes a failed prediction exchange.
type Error struct {
	Class      Class
	StatusCode int    // HTTP status, 0 for transport failures
	Message    string // service error text or a truncated response body
	Err        error
}

func (e *Error) Error() string {
	msg := "prediction " + string(e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every *Error match ErrUnavailable.
func (e *Error) Is(target error) bool {
	return target == ErrUnavailable
}

// ClassOf returns the failure class of err, or "" when err is not a prediction failure.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ""
}
