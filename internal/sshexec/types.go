// Package sshexec runs one-shot commands and interactive PTY shells against
// remote hosts over SSH. Every exported entry point accepts a
// ServerConnection and owns its own *ssh.Client for the lifetime of the
// call — there is no connection pooling.
package sshexec

import "time"

// ServerConnection describes how to dial and authenticate to a remote host.
// Exactly one of Password or PrivateKey must be set.
type ServerConnection struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey string // PEM-encoded
}

// Result is the outcome of a one-shot exec.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

const (
	// readyTimeout bounds how long the initial TCP dial + SSH handshake may
	// take before we give up and report SSHUnreachable.
	readyTimeout = 10 * time.Second

	minExecTimeout = 1 * time.Second
	maxExecTimeout = 300 * time.Second
)

// ClampTimeout enforces the [1, 300] second bound on caller-supplied exec
// timeouts, per the executor's contract.
func ClampTimeout(d time.Duration) time.Duration {
	if d < minExecTimeout {
		return minExecTimeout
	}
	if d > maxExecTimeout {
		return maxExecTimeout
	}
	return d
}
