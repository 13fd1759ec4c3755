package sshexec

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ssh"
)

func authMethod(conn ServerConnection) (ssh.AuthMethod, error) {
	if conn.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(conn.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("%w: parse private key: %v", ErrSSHAuthFail, err)
		}
		return ssh.PublicKeys(signer), nil
	}
	return ssh.Password(conn.Password), nil
}

// dial opens an *ssh.Client, classifying failures into the package's
// sentinel errors so callers never need to inspect net/ssh error internals.
func dial(conn ServerConnection) (*ssh.Client, error) {
	auth, err := authMethod(conn)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            conn.Username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // fleet hosts are operator-added, not CA-verified
		Timeout:         readyTimeout,
	}

	addr := net.JoinHostPort(conn.Host, portString(conn.Port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, classifyDialError(err)
	}
	return client, nil
}

func classifyDialError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "handshake failed"):
		return fmt.Errorf("%w: %v", ErrSSHAuthFail, err)
	default:
		return fmt.Errorf("%w: %v", ErrSSHUnreachable, err)
	}
}

func portString(port int) string {
	if port <= 0 {
		port = 22
	}
	return fmt.Sprintf("%d", port)
}
