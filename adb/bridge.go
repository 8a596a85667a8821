// Package adb wraps invocation of the external adb command-line tool: one-shot
// commands with a timeout and captured output, long-lived streaming commands
// with line iteration and idempotent teardown, and the pull/cleanup primitives
// built on top of them.
package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// TransportError is returned for every failed invocation of the device tool.
// Timeout distinguishes a command that exceeded its deadline from one that
// could not be started or exited non-zero.
type TransportError struct {
	Timeout bool
	Args    []string
	Stderr  string
	Err     error
}

func (e *TransportError) Error() string {
	kind := "failed"
	if e.Timeout {
		kind = "timed out"
	}
	msg := fmt.Sprintf("adb %s %s", strings.Join(e.Args, " "), kind)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a transport error caused by a deadline.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Timeout
}

// Output carries the captured streams of a completed one-shot command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Bridge invokes the adb binary. The zero timeout on Run means "no deadline";
// callers normally pass the configured command timeout.
type Bridge struct {
	binary string
}

// NewBridge creates a bridge for the given adb binary path. An empty path
// falls back to "adb" resolved via PATH.
func NewBridge(binary string) *Bridge {
	if strings.TrimSpace(binary) == "" {
		binary = "adb"
	}
	return &Bridge{binary: binary}
}

// Run executes a one-shot adb command, capturing stdout and stderr. A
// non-zero exit, a failed start, or an exceeded deadline all surface as a
// *TransportError; the partial Output is returned alongside it.
func (b *Bridge) Run(ctx context.Context, timeout time.Duration, args ...string) (Output, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, b.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return out, &TransportError{Timeout: true, Args: args, Err: runCtx.Err()}
		}
		return out, &TransportError{
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return out, nil
}

// HasDevice runs `adb devices` and reports whether at least one attached
// device is in the ready "device" state (as opposed to offline or
// unauthorized).
func (b *Bridge) HasDevice(ctx context.Context, timeout time.Duration) (bool, error) {
	out, err := b.Run(ctx, timeout, "devices")
	if err != nil {
		return false, err
	}
	return hasReadyDevice(out.Stdout), nil
}

// Pull transfers a single file from the device to localPath.
func (b *Bridge) Pull(ctx context.Context, timeout time.Duration, remotePath, localPath string) error {
	_, err := b.Run(ctx, timeout, "pull", remotePath, localPath)
	return err
}

// ReadFile reads a remote file's contents via `adb shell cat`.
func (b *Bridge) ReadFile(ctx context.Context, timeout time.Duration, remotePath string) (string, error) {
	out, err := b.Run(ctx, timeout, "shell", fmt.Sprintf("cat %s", remotePath))
	if err != nil {
		return "", err
	}
	return out.Stdout, nil
}

// RemoveWithQueueEntry deletes the remote file and strips its line from the
// remote queue file in one combined shell command. Callers treat a failure as
// best-effort cleanup: the file has already been retrieved safely.
func (b *Bridge) RemoveWithQueueEntry(ctx context.Context, timeout time.Duration, remotePath, filename, queueFile string) error {
	cleanup := fmt.Sprintf("rm %s && sed -i '/%s/d' %s", remotePath, filename, queueFile)
	_, err := b.Run(ctx, timeout, "shell", cleanup)
	return err
}

// hasReadyDevice parses `adb devices` output. The first line is the "List of
// devices attached" header; any later line whose second token is exactly
// "device" indicates a ready device.
func hasReadyDevice(out string) bool {
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "device" {
			return true
		}
	}
	return false
}
