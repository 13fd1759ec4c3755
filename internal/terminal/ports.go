package terminal

import (
	"context"

	"github.com/riftlabs/vpsagent/internal/sshexec"
)

// ConnectionResolver resolves a server id (scoped to the requesting user) to
// a dialable SSH coordinate, decrypting the stored credential. Implemented
// by the HTTP gateway over the Store + Vault — the relay never touches
// either directly, the same credential-resolution boundary
// internal/orchestrator keeps (its Task carries a pre-resolved
// sshexec.ServerConnection, never a serverId it has to look up itself).
type ConnectionResolver interface {
	Resolve(ctx context.Context, userID, serverID string) (sshexec.ServerConnection, error)
}

// PTY is the relay's view of an interactive remote shell: a byte stream in
// each direction plus window-resize and teardown. Narrow enough that tests
// substitute an in-memory pipe pair instead of a real SSH dial.
type PTY interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	WindowChange(cols, rows int) error
	Close() error
}

// ShellOpener opens a PTY-backed shell against conn. A narrow port over
// sshexec.OpenShell (C2), mirroring CommandRunner's relationship to
// sshexec.Exec in internal/orchestrator.
type ShellOpener interface {
	Open(conn sshexec.ServerConnection, cols, rows int) (PTY, error)
}

// sshShellOpener is the production ShellOpener.
type sshShellOpener struct{}

func (sshShellOpener) Open(conn sshexec.ServerConnection, cols, rows int) (PTY, error) {
	shell, err := sshexec.OpenShell(conn, cols, rows)
	if err != nil {
		return nil, err
	}
	return shellPTY{shell}, nil
}

// shellPTY adapts *sshexec.Shell (whose Stdin/Stdout are separate fields,
// not methods) to the PTY interface.
type shellPTY struct {
	shell *sshexec.Shell
}

func (p shellPTY) Read(b []byte) (int, error)  { return p.shell.Stdout.Read(b) }
func (p shellPTY) Write(b []byte) (int, error) { return p.shell.Stdin.Write(b) }
func (p shellPTY) WindowChange(cols, rows int) error {
	return p.shell.WindowChange(cols, rows)
}
func (p shellPTY) Close() error { return p.shell.Close() }
