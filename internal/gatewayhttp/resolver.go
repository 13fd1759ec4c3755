package gatewayhttp

import (
	"context"
	"fmt"

	"github.com/riftlabs/vpsagent/internal/sshexec"
	"github.com/riftlabs/vpsagent/internal/store"
	"github.com/riftlabs/vpsagent/internal/vault"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// ServerResolver turns a stored, vault-encrypted Server row into a dialable
// sshexec.ServerConnection. It is the one place in the tree credentials
// leave the vault in plaintext, mirroring the boundary internal/agent.Loop
// and internal/orchestrator.Task both document: they take a pre-resolved
// connection, never a serverId they look up themselves.
type ServerResolver struct {
	store store.Store
	vault *vault.CredentialVault
}

// NewServerResolver builds a resolver over the configured Store and the
// SESSION_SECRET-derived CredentialVault (§4.1's credential vault, not the
// separate API-key or backup vaults).
func NewServerResolver(st store.Store, v *vault.CredentialVault) *ServerResolver {
	return &ServerResolver{store: st, vault: v}
}

// Resolve loads the Server row for serverID, verifies it belongs to userID,
// and decrypts its credential into a live ServerConnection. The plaintext
// is held only in the returned struct, for the duration of the caller's own
// SSH attempt.
func (r *ServerResolver) Resolve(ctx context.Context, userID, serverID string) (sshexec.ServerConnection, error) {
	server, err := r.store.GetServer(ctx, serverID)
	if err != nil {
		return sshexec.ServerConnection{}, fmt.Errorf("resolve server: %w", err)
	}
	if server.UserID != userID {
		return sshexec.ServerConnection{}, store.ErrNotFound
	}

	plaintext, err := r.vault.DecryptString(server.EncryptedCredential)
	if err != nil {
		return sshexec.ServerConnection{}, fmt.Errorf("decrypt credential: %w", err)
	}

	conn := sshexec.ServerConnection{
		Host:     server.Host,
		Port:     server.EffectivePort(),
		Username: server.Username,
	}
	switch server.AuthMethod {
	case models.AuthKey:
		conn.PrivateKey = plaintext
	default:
		conn.Password = plaintext
	}
	return conn, nil
}

// Server returns the stored Server row, for routes that need its display
// fields (name, host) alongside the connection.
func (r *ServerResolver) Server(ctx context.Context, userID, serverID string) (*models.Server, error) {
	server, err := r.store.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server.UserID != userID {
		return nil, store.ErrNotFound
	}
	return server, nil
}
