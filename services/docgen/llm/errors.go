package llm

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrTimeout is returned when a generation call exceeds its deadline.
	ErrTimeout = errors.New("llm generation timed out")

	// ErrGenerationFailed is returned when the backend rejects the call or
	// the transport fails. It wraps the underlying cause.
	ErrGenerationFailed = errors.New("llm generation failed")

	// ErrEmptyResponse is returned when the backend answers successfully
	// but produces no text.
	ErrEmptyResponse = errors.New("llm returned an empty response")
)

// IsRetriable reports whether a generation error is worth retrying.
// Timeouts, transport failures, and backend rejections (a 5xx is
// usually an overloaded model server) are retriable; cancellation is
// not, and neither are errors classify never touched, such as a
// missing model.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrGenerationFailed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, ErrEmptyResponse)
}

// classify maps a raw call error onto the package's sentinel errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(ErrGenerationFailed, err)
}
