package sshexec

import (
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

// Shell is an interactive PTY-backed session. Closing either the SSH
// client or the session tears down the other; callers must call Close
// exactly once.
type Shell struct {
	client  *ssh.Client
	session *ssh.Session
	Stdin   io.WriteCloser
	Stdout  io.Reader
}

// OpenShell dials conn, requests a PTY of size (cols, rows) with
// xterm-256color, and starts an interactive shell. The returned Shell's
// Stdin/Stdout are raw byte streams to relay over a WebSocket.
func OpenShell(conn ServerConnection, cols, rows int) (*Shell, error) {
	client, err := dial(conn)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: new session: %v", ErrSSHChannelFail, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm-256color", rows, cols, modes); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: request pty: %v", ErrSSHChannelFail, err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSSHChannelFail, err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSSHChannelFail, err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: start shell: %v", ErrSSHChannelFail, err)
	}

	return &Shell{client: client, session: session, Stdin: stdin, Stdout: stdout}, nil
}

// WindowChange forwards a terminal resize to the remote PTY.
func (s *Shell) WindowChange(cols, rows int) error {
	if err := s.session.WindowChange(rows, cols); err != nil {
		return fmt.Errorf("%w: window change: %v", ErrSSHChannelFail, err)
	}
	return nil
}

// Wait blocks until the remote shell exits.
func (s *Shell) Wait() error {
	return s.session.Wait()
}

// Close tears down the session and its underlying SSH client.
func (s *Shell) Close() error {
	s.session.Close()
	return s.client.Close()
}
