// Package capture acquires microphone audio as a stream of 16-bit
// little-endian PCM and holds the host awake while a session records.
package capture

import (
	"context"
	"errors"
	"io"
)

var (
	ErrPermissionDenied    = errors.New("microphone permission denied")
	ErrDeviceUnavailable   = errors.New("capture device unavailable")
	ErrUnsupportedPlatform = errors.New("audio capture not supported on this platform")
)

type Config struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// Source opens capture streams. Acquire fails with one of the package
// errors when the device cannot be opened.
type Source interface {
	Acquire(ctx context.Context, cfg Config) (Stream, error)
}

// Stream yields PCM until released or the device goes away. Release is
// idempotent and safe to call concurrently with Read.
type Stream interface {
	io.Reader
	Release() error
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.InputDevice == "" {
		c.InputDevice = "default"
	}
	return c
}
