package tools

import (
	"encoding/json"
	"regexp"
	"strings"
)

// dangerPatterns is the fixed, case-insensitive pattern list the danger
// classifier matches against the raw command string.
var dangerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf\b`),
	regexp.MustCompile(`(?i)\bdd\s+if=`),
	regexp.MustCompile(`(?i)\bmkfs(\.|\s)`),
	regexp.MustCompile(`(?i)\bfdisk\b`),
	regexp.MustCompile(`(?i)>\s*/dev/\w+`),
	regexp.MustCompile(`(?i)\b(shutdown|reboot|halt|poweroff)\b`),
	regexp.MustCompile(`(?i)chmod\s+777\b`),
	regexp.MustCompile(`(?i)chown\s+-R\b.*\s/\s*$`),
	regexp.MustCompile(`:\(\)\{.*:\|:.*\};:`), // fork bomb
	regexp.MustCompile(`(?i)>\s*/etc/\w+`),
	regexp.MustCompile(`(?i)\bsystemctl\s+(stop|disable)\s+(ssh|sshd|networking|network)\b`),
	regexp.MustCompile(`(?i)\bservice\s+(ssh|sshd|networking|network)\s+stop\b`),
	regexp.MustCompile(`(?i)\bufw\s+disable\b`),
	regexp.MustCompile(`(?i)\biptables\s+-F\b`),
	regexp.MustCompile(`(?i)\bDROP\s+TABLE\b`),
	regexp.MustCompile(`(?i)\bTRUNCATE\b`),
	regexp.MustCompile(`(?i)\bDELETE\s+FROM\b(?:(?!\bWHERE\b).)*;`),
	regexp.MustCompile(`(?i)\buserdel\b`),
	regexp.MustCompile(`(?i)\bpasswd\s+root\b`),
}

// IsDangerousCommand reports whether the raw command string matches any
// fixed danger pattern.
func IsDangerousCommand(command string) bool {
	for _, p := range dangerPatterns {
		if p.MatchString(command) {
			return true
		}
	}
	return false
}

// IsSelectOnly reports whether a SQL statement is a bare SELECT, the one
// database_query shape that does not require approval.
func IsSelectOnly(statement string) bool {
	trimmed := strings.TrimSpace(statement)
	return strings.HasPrefix(strings.ToUpper(trimmed), "SELECT")
}

// IntrinsicallyDangerous reports whether a tool call requires approval
// regardless of what IsDangerousCommand says about its command string,
// based on the tool name and a decoded action/flag inside params.
func IntrinsicallyDangerous(toolName string, params json.RawMessage) bool {
	var decoded struct {
		Action      string `json:"action"`
		AssumeYes   bool   `json:"assume_yes"`
		Statement   string `json:"statement"`
		Unattended  bool   `json:"unattended"`
	}
	_ = json.Unmarshal(params, &decoded)
	action := strings.ToLower(decoded.Action)

	switch toolName {
	case "docker_manage":
		return action == "stop" || action == "rm" || action == "kill" || action == "prune"
	case "package_manage":
		return action == "upgrade" && decoded.AssumeYes
	case "nginx_manage":
		return action == "reload" || action == "restart"
	case "ssl_certificate":
		return action == "obtain" || action == "revoke" || action == "delete"
	case "database_query":
		return !IsSelectOnly(decoded.Statement)
	case "restic_backup", "restic_restore", "restic_prune":
		// A config created with unattended=true lets a scheduled mutating
		// op skip the approval gate (DESIGN.md Open Question 5); manual
		// calls never set this field, so they still require approval.
		return !decoded.Unattended
	default:
		return false
	}
}
