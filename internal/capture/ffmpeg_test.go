package capture

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFFmpegSourceReadAndRelease(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nexec sleep 5\n")
	source := NewFFmpegSource(script)

	stream, err := source.Acquire(context.Background(), Config{})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := stream.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := stream.Release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := stream.Release(); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
}

func TestFFmpegSourceClassifiesStartFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		script string
		want   error
	}{
		{"permission", "#!/usr/bin/env bash\necho 'default: Permission denied' 1>&2\nexit 1\n", ErrPermissionDenied},
		{"device", "#!/usr/bin/env bash\necho 'default: No such device' 1>&2\nexit 1\n", ErrDeviceUnavailable},
		{"clean exit", "#!/usr/bin/env bash\nexit 0\n", ErrDeviceUnavailable},
		{"format", "#!/usr/bin/env bash\necho 'Unknown input format: pulse' 1>&2\nexit 1\n", ErrUnsupportedPlatform},
	}
	for _, tc := range cases {
		source := NewFFmpegSource(writeScript(t, "fail.sh", tc.script))
		source.StartupGrace = time.Second
		_, err := source.Acquire(context.Background(), Config{})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestFFmpegSourceMissingBinary(t *testing.T) {
	t.Parallel()

	source := NewFFmpegSource(filepath.Join(t.TempDir(), "no-such-ffmpeg"))
	_, err := source.Acquire(context.Background(), Config{})
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestExecWakeLockRelease(t *testing.T) {
	t.Parallel()

	lock, err := NewExecWakeLock("sleep 30")
	if err != nil {
		t.Fatalf("new wake lock: %v", err)
	}
	release, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- release() }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("release did not return")
	}
	if err := release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestExecWakeLockRejectsEmptyCommand(t *testing.T) {
	t.Parallel()

	if _, err := NewExecWakeLock("  "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
