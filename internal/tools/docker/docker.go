// Package docker implements the docker_list, docker_manage, and
// docker_compose tools, each a thin command-string builder dispatched over
// the SSH Executor against the remote Docker CLI.
package docker

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

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ListTool lists containers (running by default, all with all=true).
type ListTool struct{}

func NewListTool() *ListTool { return &ListTool{} }

func (t *ListTool) Name() string        { return "docker_list" }
func (t *ListTool) Description() string { return "List Docker containers." }
func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"all": {"type": "boolean", "description": "Include stopped containers."}}
	}`)
}
func (t *ListTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *ListTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		All bool `json:"all"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	command := "docker ps"
	if p.All {
		command += " -a"
	}
	return runRemote(sess, command, defaultTimeout)
}

// ManageTool performs a lifecycle action against one container.
type ManageTool struct{}

func NewManageTool() *ManageTool { return &ManageTool{} }

func (t *ManageTool) Name() string        { return "docker_manage" }
func (t *ManageTool) Description() string { return "Start, stop, remove, inspect logs/exec, kill, or prune Docker containers." }
func (t *ManageTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["start", "stop", "rm", "logs", "exec", "kill", "prune"]},
			"container": {"type": "string"},
			"command": {"type": "string", "description": "Command to run for action=exec."},
			"lines": {"type": "integer", "minimum": 1}
		},
		"required": ["action"]
	}`)
}
func (t *ManageTool) RequiresApproval(params json.RawMessage) bool {
	return tools.IntrinsicallyDangerous(t.Name(), params)
}
func (t *ManageTool) buildCommand(params json.RawMessage) (string, error) {
	var p struct {
		Action    string `json:"action"`
		Container string `json:"container"`
		Command   string `json:"command"`
		Lines     int    `json:"lines"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	action := strings.ToLower(p.Action)
	if action == "prune" {
		return "docker container prune -f", nil
	}
	if strings.TrimSpace(p.Container) == "" {
		return "", fmt.Errorf("container is required")
	}
	container := shellQuote(p.Container)

	switch action {
	case "start":
		return "docker start " + container, nil
	case "stop":
		return "docker stop " + container, nil
	case "rm":
		return "docker rm -f " + container, nil
	case "kill":
		return "docker kill " + container, nil
	case "logs":
		lines := p.Lines
		if lines <= 0 {
			lines = 200
		}
		return fmt.Sprintf("docker logs --tail %d %s", lines, container), nil
	case "exec":
		if strings.TrimSpace(p.Command) == "" {
			return "", fmt.Errorf("command is required for exec")
		}
		return fmt.Sprintf("docker exec %s sh -c %s", container, shellQuote(p.Command)), nil
	default:
		return "", fmt.Errorf("unsupported action: %s", p.Action)
	}
}

// PreviewCommand implements tools.CommandPreviewer.
func (t *ManageTool) PreviewCommand(ctx context.Context, sess *tools.Session, params json.RawMessage) (string, error) {
	return t.buildCommand(params)
}

func (t *ManageTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	command, err := t.buildCommand(params)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}
	return runRemote(sess, command, defaultTimeout)
}

// ComposeTool drives docker compose against a compose file path.
type ComposeTool struct{}

func NewComposeTool() *ComposeTool { return &ComposeTool{} }

func (t *ComposeTool) Name() string        { return "docker_compose" }
func (t *ComposeTool) Description() string { return "Run docker compose up/down/ps/logs against a compose file." }
func (t *ComposeTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["up", "down", "ps", "logs"]},
			"file": {"type": "string", "description": "Path to docker-compose.yml."}
		},
		"required": ["action", "file"]
	}`)
}
func (t *ComposeTool) RequiresApproval(params json.RawMessage) bool {
	var p struct {
		Action string `json:"action"`
	}
	_ = json.Unmarshal(params, &p)
	return strings.ToLower(p.Action) == "down"
}
func (t *ComposeTool) buildCommand(params json.RawMessage) (string, error) {
	var p struct {
		Action string `json:"action"`
		File   string `json:"file"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(p.File) == "" {
		return "", fmt.Errorf("file is required")
	}
	base := fmt.Sprintf("docker compose -f %s", shellQuote(p.File))
	switch strings.ToLower(p.Action) {
	case "up":
		return base + " up -d", nil
	case "down":
		return base + " down", nil
	case "ps":
		return base + " ps", nil
	case "logs":
		return base + " logs --tail 200", nil
	default:
		return "", fmt.Errorf("unsupported action: %s", p.Action)
	}
}

// PreviewCommand implements tools.CommandPreviewer.
func (t *ComposeTool) PreviewCommand(ctx context.Context, sess *tools.Session, params json.RawMessage) (string, error) {
	return t.buildCommand(params)
}

func (t *ComposeTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	command, err := t.buildCommand(params)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}
	return runRemote(sess, command, defaultTimeout)
}
