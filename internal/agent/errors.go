package agent

import "errors"

// Sentinel errors the dispatcher returns for the two failure modes spec §4.4
// distinguishes from an executed-but-failed command.
var (
	// ErrToolUnknown means the catalog has no tool registered under the
	// requested name.
	ErrToolUnknown = errors.New("tool unknown")

	// ErrToolBadInput means the call's input failed schema validation
	// before any handler ran.
	ErrToolBadInput = errors.New("tool input does not match schema")

	// ErrApprovalNotFound means the approval id on an approve() call does
	// not match any pending approval (already resolved, or never existed).
	ErrApprovalNotFound = errors.New("pending approval not found")
)
