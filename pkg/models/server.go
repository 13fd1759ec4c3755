// Package models holds the shared data types exchanged between the agent
// core and its storage, transport, and tool layers.
package models

import "time"

// AuthMethod identifies how the agent authenticates to a remote host.
type AuthMethod string

const (
	AuthPassword AuthMethod = "password"
	AuthKey      AuthMethod = "key"
)

// Server is a registered VPS the agent can reach over SSH.
//
// EncryptedCredential never leaves the vault boundary in plaintext: it is
// decrypted per SSH attempt and the plaintext is held only for the
// duration of the connect call.
type Server struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`

	Host       string     `json:"host"`
	Port       int        `json:"port"`
	Username   string     `json:"username"`
	AuthMethod AuthMethod `json:"auth_method"`

	EncryptedCredential string `json:"encrypted_credential"`

	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
}

// EffectivePort returns Port, defaulting to 22 when unset.
func (s *Server) EffectivePort() int {
	if s.Port <= 0 {
		return 22
	}
	return s.Port
}
