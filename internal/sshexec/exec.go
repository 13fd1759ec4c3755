package sshexec

import (
	"bytes"
	"fmt"
	"time"
)

// Exec opens a fresh connection, runs command, and accumulates stdout and
// stderr until the channel closes. timeout is clamped to [1, 300] seconds;
// breaching it aborts the connection and returns ErrSSHTimeout. The
// connection is closed on every path — success, error, or timeout.
func Exec(conn ServerConnection, command string, timeout time.Duration) (*Result, error) {
	client, err := dial(conn)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: new session: %v", ErrSSHChannelFail, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case runErr := <-done:
		exitCode := 0
		if runErr != nil {
			if code, ok := exitCodeOf(runErr); ok {
				exitCode = code
			} else {
				return nil, fmt.Errorf("%w: %v", ErrSSHChannelFail, runErr)
			}
		}
		return &Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil

	case <-time.After(ClampTimeout(timeout)):
		client.Close()
		return nil, ErrSSHTimeout
	}
}

// OutputWithStderrMarker merges stderr into stdout with a [STDERR] marker,
// for presenting a single text blob to the LLM.
func (r *Result) OutputWithStderrMarker() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return "[STDERR] " + r.Stderr
	}
	return r.Stdout + "\n[STDERR] " + r.Stderr
}
