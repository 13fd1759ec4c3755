// Package system implements host-introspection and host-management tools:
// metrics, service status, logs, package management, process management,
// cron management, network diagnostics, and a read-only security audit.
package system

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/riftlabs/vpsagent/internal/sshexec"
	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/pkg/models"
)

const defaultTimeout = 30 * time.Second

func runRemote(sess *tools.Session, command string, timeout time.Duration) (*models.ToolResult, error) {
	result, err := sshexec.Exec(sess.Conn, command, timeout)
	if err != nil {
		return nil, err
	}
	return &models.ToolResult{
		Success:  result.ExitCode == 0,
		Output:   result.OutputWithStderrMarker(),
		Metadata: map[string]any{"exit_code": result.ExitCode},
	}, nil
}

// GetSystemMetricsTool runs a composite df/free/uptime/vmstat sweep.
type GetSystemMetricsTool struct{}

func NewGetSystemMetricsTool() *GetSystemMetricsTool { return &GetSystemMetricsTool{} }

func (t *GetSystemMetricsTool) Name() string        { return "get_system_metrics" }
func (t *GetSystemMetricsTool) Description() string { return "Report CPU load, memory, disk, and process metrics for the server." }
func (t *GetSystemMetricsTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}
func (t *GetSystemMetricsTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *GetSystemMetricsTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	command := `echo '--- uptime ---'; uptime; echo '--- free ---'; free -m; echo '--- df ---'; df -h; echo '--- vmstat ---'; vmstat 1 2`
	return runRemote(sess, command, defaultTimeout)
}

// CheckServiceStatusTool reports systemd unit status.
type CheckServiceStatusTool struct{}

func NewCheckServiceStatusTool() *CheckServiceStatusTool { return &CheckServiceStatusTool{} }

func (t *CheckServiceStatusTool) Name() string        { return "check_service_status" }
func (t *CheckServiceStatusTool) Description() string { return "Check a systemd service's status." }
func (t *CheckServiceStatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"service": {"type": "string"}},
		"required": ["service"]
	}`)
}
func (t *CheckServiceStatusTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *CheckServiceStatusTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		Service string `json:"service"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(p.Service) == "" {
		return tools.ErrorResult("service is required"), nil
	}
	command := fmt.Sprintf("systemctl status %s --no-pager", shellQuote(p.Service))
	return runRemote(sess, command, defaultTimeout)
}

// GetLogsTool tails journalctl or a log file.
type GetLogsTool struct{}

func NewGetLogsTool() *GetLogsTool { return &GetLogsTool{} }

func (t *GetLogsTool) Name() string        { return "get_logs" }
func (t *GetLogsTool) Description() string { return "Fetch recent logs for a systemd unit or a log file path." }
func (t *GetLogsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"unit": {"type": "string", "description": "systemd unit name; mutually exclusive with path."},
			"path": {"type": "string", "description": "Log file path; mutually exclusive with unit."},
			"lines": {"type": "integer", "minimum": 1}
		}
	}`)
}
func (t *GetLogsTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *GetLogsTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		Unit  string `json:"unit"`
		Path  string `json:"path"`
		Lines int    `json:"lines"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	lines := p.Lines
	if lines <= 0 {
		lines = 200
	}
	var command string
	switch {
	case strings.TrimSpace(p.Unit) != "":
		command = fmt.Sprintf("journalctl -u %s -n %d --no-pager", shellQuote(p.Unit), lines)
	case strings.TrimSpace(p.Path) != "":
		command = fmt.Sprintf("tail -n %d %s", lines, shellQuote(p.Path))
	default:
		return tools.ErrorResult("one of unit or path is required"), nil
	}
	return runRemote(sess, command, defaultTimeout)
}

// PackageManageTool installs, removes, or upgrades packages via apt-get or yum.
type PackageManageTool struct{}

func NewPackageManageTool() *PackageManageTool { return &PackageManageTool{} }

func (t *PackageManageTool) Name() string        { return "package_manage" }
func (t *PackageManageTool) Description() string { return "Install, remove, or upgrade OS packages (apt-get or yum, auto-detected)." }
func (t *PackageManageTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["install", "remove", "upgrade", "list"]},
			"package": {"type": "string"},
			"assume_yes": {"type": "boolean"}
		},
		"required": ["action"]
	}`)
}
func (t *PackageManageTool) RequiresApproval(params json.RawMessage) bool {
	return tools.IntrinsicallyDangerous(t.Name(), params)
}
func (t *PackageManageTool) buildCommand(params json.RawMessage) (string, error) {
	var p struct {
		Action    string `json:"action"`
		Package   string `json:"package"`
		AssumeYes bool   `json:"assume_yes"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}

	detect := `if command -v apt-get >/dev/null 2>&1; then MGR=apt-get; elif command -v yum >/dev/null 2>&1; then MGR=yum; else echo "no supported package manager" >&2; exit 1; fi; `
	yesFlag := ""
	if p.AssumeYes {
		yesFlag = "-y "
	}

	var sub string
	switch strings.ToLower(p.Action) {
	case "install":
		sub = fmt.Sprintf(`$MGR install %s%s`, yesFlag, shellQuote(p.Package))
	case "remove":
		sub = fmt.Sprintf(`$MGR remove %s%s`, yesFlag, shellQuote(p.Package))
	case "upgrade":
		sub = fmt.Sprintf(`$MGR upgrade %s`, yesFlag)
	case "list":
		sub = `$MGR list --installed 2>/dev/null || rpm -qa`
	default:
		return "", fmt.Errorf("unsupported action: %s", p.Action)
	}
	return detect + sub, nil
}

// PreviewCommand implements tools.CommandPreviewer.
func (t *PackageManageTool) PreviewCommand(ctx context.Context, sess *tools.Session, params json.RawMessage) (string, error) {
	return t.buildCommand(params)
}

func (t *PackageManageTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	command, err := t.buildCommand(params)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}
	return runRemote(sess, command, defaultTimeout)
}

// ProcessManageTool inspects or kills remote processes.
type ProcessManageTool struct{}

func NewProcessManageTool() *ProcessManageTool { return &ProcessManageTool{} }

func (t *ProcessManageTool) Name() string        { return "process_manage" }
func (t *ProcessManageTool) Description() string { return "List processes or kill one by PID." }
func (t *ProcessManageTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["list", "kill"]},
			"pid": {"type": "integer"},
			"signal": {"type": "string"}
		},
		"required": ["action"]
	}`)
}
func (t *ProcessManageTool) RequiresApproval(params json.RawMessage) bool {
	var p struct {
		Action string `json:"action"`
	}
	_ = json.Unmarshal(params, &p)
	return strings.ToLower(p.Action) == "kill"
}
func (t *ProcessManageTool) buildCommand(params json.RawMessage) (string, error) {
	var p struct {
		Action string `json:"action"`
		PID    int    `json:"pid"`
		Signal string `json:"signal"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	switch strings.ToLower(p.Action) {
	case "list":
		return "ps aux --sort=-%cpu | head -50", nil
	case "kill":
		if p.PID <= 0 {
			return "", fmt.Errorf("pid is required for kill")
		}
		sig := p.Signal
		if sig == "" {
			sig = "TERM"
		}
		return fmt.Sprintf("kill -%s %d", shellQuote(sig), p.PID), nil
	default:
		return "", fmt.Errorf("unsupported action: %s", p.Action)
	}
}

// PreviewCommand implements tools.CommandPreviewer.
func (t *ProcessManageTool) PreviewCommand(ctx context.Context, sess *tools.Session, params json.RawMessage) (string, error) {
	return t.buildCommand(params)
}

func (t *ProcessManageTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	command, err := t.buildCommand(params)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}
	return runRemote(sess, command, defaultTimeout)
}

// CronManageTool lists or replaces the user's crontab.
type CronManageTool struct{}

func NewCronManageTool() *CronManageTool { return &CronManageTool{} }

func (t *CronManageTool) Name() string        { return "cron_manage" }
func (t *CronManageTool) Description() string { return "List or replace the remote user's crontab." }
func (t *CronManageTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["list", "set"]},
			"crontab": {"type": "string", "description": "Full crontab content for action=set."}
		},
		"required": ["action"]
	}`)
}
func (t *CronManageTool) RequiresApproval(params json.RawMessage) bool {
	var p struct {
		Action string `json:"action"`
	}
	_ = json.Unmarshal(params, &p)
	return strings.ToLower(p.Action) == "set"
}
func (t *CronManageTool) buildCommand(params json.RawMessage) (string, error) {
	var p struct {
		Action  string `json:"action"`
		Crontab string `json:"crontab"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	switch strings.ToLower(p.Action) {
	case "list":
		return "crontab -l", nil
	case "set":
		return fmt.Sprintf("cat <<'VPSAGENT_CRON_EOF' | crontab -\n%s\nVPSAGENT_CRON_EOF", p.Crontab), nil
	default:
		return "", fmt.Errorf("unsupported action: %s", p.Action)
	}
}

// PreviewCommand implements tools.CommandPreviewer.
func (t *CronManageTool) PreviewCommand(ctx context.Context, sess *tools.Session, params json.RawMessage) (string, error) {
	return t.buildCommand(params)
}

func (t *CronManageTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	command, err := t.buildCommand(params)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}
	return runRemote(sess, command, defaultTimeout)
}

// NetworkDiagnoseTool runs ss/ping/traceroute.
type NetworkDiagnoseTool struct{}

func NewNetworkDiagnoseTool() *NetworkDiagnoseTool { return &NetworkDiagnoseTool{} }

func (t *NetworkDiagnoseTool) Name() string        { return "network_diagnose" }
func (t *NetworkDiagnoseTool) Description() string { return "Run a network diagnostic: listening sockets, ping, or traceroute." }
func (t *NetworkDiagnoseTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"mode": {"type": "string", "enum": ["sockets", "ping", "traceroute"]},
			"target": {"type": "string", "description": "Host for ping/traceroute modes."}
		},
		"required": ["mode"]
	}`)
}
func (t *NetworkDiagnoseTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *NetworkDiagnoseTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		Mode   string `json:"mode"`
		Target string `json:"target"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	var command string
	switch strings.ToLower(p.Mode) {
	case "sockets":
		command = "ss -tlnp"
	case "ping":
		if strings.TrimSpace(p.Target) == "" {
			return tools.ErrorResult("target is required for ping"), nil
		}
		command = fmt.Sprintf("ping -c 4 %s", shellQuote(p.Target))
	case "traceroute":
		if strings.TrimSpace(p.Target) == "" {
			return tools.ErrorResult("target is required for traceroute"), nil
		}
		command = fmt.Sprintf("traceroute %s", shellQuote(p.Target))
	default:
		return tools.ErrorResult("unsupported mode: " + p.Mode), nil
	}
	return runRemote(sess, command, defaultTimeout)
}

// SecurityAuditTool runs a fixed, read-only composite security sweep.
type SecurityAuditTool struct{}

func NewSecurityAuditTool() *SecurityAuditTool { return &SecurityAuditTool{} }

func (t *SecurityAuditTool) Name() string        { return "security_audit" }
func (t *SecurityAuditTool) Description() string { return "Run a read-only security sweep: open ports, recent logins, UID-0 accounts, unattended-upgrades state." }
func (t *SecurityAuditTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}
func (t *SecurityAuditTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *SecurityAuditTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	command := strings.Join([]string{
		"echo '--- listening sockets ---'", "ss -tlnp",
		"echo '--- recent logins ---'", "last -n 20",
		"echo '--- uid0 accounts ---'", "awk -F: '$3 == 0 {print $1}' /etc/passwd",
		"echo '--- unattended-upgrades ---'", "systemctl is-enabled unattended-upgrades 2>&1 || true",
	}, "; ")
	return runRemote(sess, command, defaultTimeout)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
