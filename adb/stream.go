package adb

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"
)

const streamLineBuffer = 64

// Stream is a handle to a long-lived adb command (typically logcat). Lines()
// yields the child's stdout one line at a time and closes on stream end;
// Terminate kills the child and is safe to call any number of times, so no
// child process outlives a reconnect cycle.
type Stream struct {
	cmd   *exec.Cmd
	lines chan string
	quit  chan struct{}
	once  sync.Once
}

// Stream starts a long-lived adb command and returns its line stream. The
// child is also killed when ctx is cancelled.
func (b *Bridge) Stream(ctx context.Context, args ...string) (*Stream, error) {
	cmd := exec.CommandContext(ctx, b.binary, args...)
	cmd.Stderr = io.Discard
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &TransportError{Args: args, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &TransportError{Args: args, Err: err}
	}

	s := &Stream{
		cmd:   cmd,
		lines: make(chan string, streamLineBuffer),
		quit:  make(chan struct{}),
	}
	go s.readLoop(stdout)
	return s, nil
}

// Lines returns the channel of output lines. It is closed when the underlying
// command exits or its output is torn down.
func (s *Stream) Lines() <-chan string {
	return s.lines
}

// Terminate kills the underlying process and reaps it. Idempotent.
func (s *Stream) Terminate() {
	s.once.Do(func() {
		close(s.quit)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	})
}

func (s *Stream) readLoop(stdout io.Reader) {
	defer close(s.lines)
	// Reap the child regardless of how the scan ends so a dead logcat never
	// lingers as a zombie across listener reconnects.
	defer func() { _ = s.cmd.Wait() }()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case s.lines <- scanner.Text():
		case <-s.quit:
			return
		}
	}
}
