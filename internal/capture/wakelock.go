package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// WakeLock keeps the host from sleeping while a session records. The
// returned release func is idempotent.
type WakeLock interface {
	Acquire(ctx context.Context) (release func() error, err error)
}

type NopWakeLock struct{}

func (NopWakeLock) Acquire(context.Context) (func() error, error) {
	return func() error { return nil }, nil
}

// ExecWakeLock holds an inhibitor process such as
// "systemd-inhibit --what=idle:sleep sleep infinity" for the session.
type ExecWakeLock struct {
	args []string
}

func NewExecWakeLock(command string) (*ExecWakeLock, error) {
	args, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse wake lock command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("wake lock command is empty")
	}
	return &ExecWakeLock{args: args}, nil
}

func (w *ExecWakeLock) Acquire(ctx context.Context) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(w.args[0], w.args[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start wake lock: %w", err)
	}
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			select {
			case <-done:
				return
			default:
			}
			if killErr := cmd.Process.Signal(os.Interrupt); killErr != nil {
				err = cmd.Process.Kill()
			}
			<-done
		})
		return err
	}, nil
}
