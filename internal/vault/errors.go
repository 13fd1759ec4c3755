package vault

import "errors"

// Error kinds surfaced to HTTP callers as 500s (spec §7); never surfaced to
// the LLM.
var (
	ErrInvalidFormat = errors.New("vault: ciphertext has invalid format")
	ErrAuthFail      = errors.New("vault: authentication tag verification failed")
	ErrEmptySecret   = errors.New("vault: master secret is empty")
)
