package recorder

import (
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-scribe/internal/capture"
	"github.com/loqalabs/loqa-scribe/internal/stt"
)

var (
	ErrSessionActive   = errors.New("recording session already active")
	ErrNoActiveSession = errors.New("no active recording session")
	ErrClosed          = errors.New("recorder closed")

	ErrPermissionDenied    = capture.ErrPermissionDenied
	ErrDeviceUnavailable   = capture.ErrDeviceUnavailable
	ErrUnsupportedPlatform = capture.ErrUnsupportedPlatform

	// ErrDurationExceeded belongs to the too-large class of transcription
	// failures, so errors.Is(err, stt.ErrTooLarge) also holds.
	ErrDurationExceeded       = fmt.Errorf("recording exceeds the duration ceiling: %w", stt.ErrTooLarge)
	ErrRestartBudgetExhausted = errors.New("recognizer restart budget exhausted")
)

// fatalCodes are recognizer errors that end the session without a restart.
var fatalCodes = map[string]bool{
	stt.CodePermissionDenied:  true,
	stt.CodeNotAllowed:        true,
	stt.CodeServiceNotAllowed: true,
}

func isFatalCode(code string) bool {
	return fatalCodes[code]
}
