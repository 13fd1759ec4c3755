package sshexec

import "errors"

// Failure classes surfaced to callers. Exit codes != 0 are never errors —
// they are data returned in Result. These sentinels are the only SSH-layer
// failures the agent loop and task orchestrator know how to retry on.
var (
	ErrSSHUnreachable = errors.New("sshexec: could not reach host")
	ErrSSHAuthFail    = errors.New("sshexec: authentication failed")
	ErrSSHTimeout     = errors.New("sshexec: command exceeded timeout")
	ErrSSHChannelFail = errors.New("sshexec: channel error")
)
