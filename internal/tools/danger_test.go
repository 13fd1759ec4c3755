package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDangerousCommand(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		expected bool
	}{
		{"benign df", "df -h", false},
		{"benign ls", "ls -la /var/log", false},
		{"rm -rf", "rm -rf /var/log", true},
		{"dd if=", "dd if=/dev/zero of=/dev/sda", true},
		{"mkfs dot variant", "mkfs.ext4 /dev/sdb1", true},
		{"fdisk", "fdisk /dev/sda", true},
		{"redirect to dev", "echo x > /dev/sda", true},
		{"shutdown", "shutdown -h now", true},
		{"reboot", "sudo reboot", true},
		{"chmod 777", "chmod 777 /etc/passwd", true},
		{"chown recursive root", "chown -R nobody:nobody /", true},
		{"fork bomb", ":(){ :|:& };:", true},
		{"redirect to etc", "echo bad > /etc/hosts", true},
		{"stop sshd", "systemctl stop sshd", true},
		{"service ssh stop", "service ssh stop", true},
		{"ufw disable", "ufw disable", true},
		{"iptables flush", "iptables -F", true},
		{"drop table", "DROP TABLE users", true},
		{"truncate", "TRUNCATE accounts", true},
		{"delete without where", "DELETE FROM users;", true},
		{"delete with where is fine", "DELETE FROM users WHERE id=1;", false},
		{"userdel", "userdel alice", true},
		{"passwd root", "passwd root", true},
		{"case insensitive", "RM -RF /tmp/x", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsDangerousCommand(tc.command))
		})
	}
}

func TestIsSelectOnly(t *testing.T) {
	assert.True(t, IsSelectOnly("SELECT * FROM users"))
	assert.True(t, IsSelectOnly("  select id from accounts"))
	assert.False(t, IsSelectOnly("DELETE FROM users"))
	assert.False(t, IsSelectOnly("UPDATE users SET x=1"))
}

func TestIntrinsicallyDangerous(t *testing.T) {
	tests := []struct {
		name     string
		tool     string
		params   string
		expected bool
	}{
		{"docker stop", "docker_manage", `{"action":"stop"}`, true},
		{"docker logs", "docker_manage", `{"action":"logs"}`, false},
		{"package upgrade with assume_yes", "package_manage", `{"action":"upgrade","assume_yes":true}`, true},
		{"package upgrade without assume_yes", "package_manage", `{"action":"upgrade","assume_yes":false}`, false},
		{"nginx reload", "nginx_manage", `{"action":"reload"}`, true},
		{"nginx test", "nginx_manage", `{"action":"test"}`, false},
		{"ssl obtain", "ssl_certificate", `{"action":"obtain"}`, true},
		{"ssl list", "ssl_certificate", `{"action":"list"}`, false},
		{"db select", "database_query", `{"statement":"SELECT 1"}`, false},
		{"db delete", "database_query", `{"statement":"DELETE FROM t"}`, true},
		{"restic backup requires approval by default", "restic_backup", `{}`, true},
		{"restic backup unattended skips approval", "restic_backup", `{"unattended":true}`, false},
		{"restic restore unattended skips approval", "restic_restore", `{"unattended":true}`, false},
		{"restic prune requires approval by default", "restic_prune", `{}`, true},
		{"unrelated tool", "read_file", `{}`, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IntrinsicallyDangerous(tc.tool, json.RawMessage(tc.params)))
		})
	}
}
