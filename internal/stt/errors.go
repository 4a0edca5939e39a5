package stt

import (
	"errors"
	"fmt"
)

var (
	// ErrTooLarge means the payload exceeds what the service accepts.
	ErrTooLarge = errors.New("audio payload too large")
	// ErrUnrecognized means the service heard nothing it could transcribe.
	ErrUnrecognized = errors.New("audio not recognized")
	// ErrServiceUnavailable marks transient failures worth retrying.
	ErrServiceUnavailable = errors.New("transcription service unavailable")
)

const (
	KindTooLarge     = "too_large"
	KindUnrecognized = "unrecognized"
	KindUnavailable  = "unavailable"
)

// Unavailable wraps err so that errors.Is(err, ErrServiceUnavailable) holds.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}

// KindOf reports the wire kind of err, or "" for unclassified errors.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTooLarge):
		return KindTooLarge
	case errors.Is(err, ErrUnrecognized):
		return KindUnrecognized
	case errors.Is(err, ErrServiceUnavailable):
		return KindUnavailable
	default:
		return ""
	}
}

// FromKind rebuilds an error received from a remote transcriber.
func FromKind(kind, message string) error {
	switch kind {
	case KindTooLarge:
		return fmt.Errorf("%w: %s", ErrTooLarge, message)
	case KindUnrecognized:
		return fmt.Errorf("%w: %s", ErrUnrecognized, message)
	case KindUnavailable:
		return fmt.Errorf("%w: %s", ErrServiceUnavailable, message)
	default:
		return errors.New(message)
	}
}
