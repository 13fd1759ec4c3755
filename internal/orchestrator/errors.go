package orchestrator

import "errors"

// Sentinel errors the HTTP gateway maps to 404/409 per spec §7's NotFound /
// InputInvalid taxonomy, mirrored on sshexec's sentinel-error convention.
var (
	ErrTaskNotFound     = errors.New("orchestrator: task not found")
	ErrStepNotFound     = errors.New("orchestrator: step not found")
	ErrAlreadyExecuting = errors.New("orchestrator: task is already executing")
	ErrTaskTerminal     = errors.New("orchestrator: task already reached a terminal state")
	ErrTaskNotRunning   = errors.New("orchestrator: task is not running")
)
