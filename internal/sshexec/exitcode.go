package sshexec

import "golang.org/x/crypto/ssh"

// exitCodeOf extracts a process exit code from a session.Run error. A
// non-nil, non-ExitError return means the channel itself failed (not the
// remote command), which callers surface as ErrSSHChannelFail.
func exitCodeOf(err error) (int, bool) {
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return exitErr.ExitStatus(), true
	}
	return 0, false
}
