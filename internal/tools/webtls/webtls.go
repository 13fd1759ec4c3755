// Package webtls implements nginx_manage, ssl_certificate, and
// database_query: remote web-server, TLS certificate, and database-client
// invocations over the SSH Executor.
package webtls

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

// NginxManageTool tests config, reloads/restarts, or toggles a site.
type NginxManageTool struct{}

func NewNginxManageTool() *NginxManageTool { return &NginxManageTool{} }

func (t *NginxManageTool) Name() string        { return "nginx_manage" }
func (t *NginxManageTool) Description() string { return "Test nginx config, reload/restart the service, or enable/disable a site." }
func (t *NginxManageTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["test", "reload", "restart", "enable-site", "disable-site"]},
			"site": {"type": "string", "description": "Site name, for enable-site/disable-site."}
		},
		"required": ["action"]
	}`)
}
func (t *NginxManageTool) RequiresApproval(params json.RawMessage) bool {
	return tools.IntrinsicallyDangerous(t.Name(), params)
}
func (t *NginxManageTool) buildCommand(params json.RawMessage) (string, error) {
	var p struct {
		Action string `json:"action"`
		Site   string `json:"site"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	switch strings.ToLower(p.Action) {
	case "test":
		return "nginx -t", nil
	case "reload":
		return "systemctl reload nginx", nil
	case "restart":
		return "systemctl restart nginx", nil
	case "enable-site":
		if strings.TrimSpace(p.Site) == "" {
			return "", fmt.Errorf("site is required")
		}
		return fmt.Sprintf("ln -sf /etc/nginx/sites-available/%s /etc/nginx/sites-enabled/%s && nginx -t && systemctl reload nginx",
			shellQuote(p.Site), shellQuote(p.Site)), nil
	case "disable-site":
		if strings.TrimSpace(p.Site) == "" {
			return "", fmt.Errorf("site is required")
		}
		return fmt.Sprintf("rm -f /etc/nginx/sites-enabled/%s && systemctl reload nginx", shellQuote(p.Site)), nil
	default:
		return "", fmt.Errorf("unsupported action: %s", p.Action)
	}
}

// PreviewCommand implements tools.CommandPreviewer.
func (t *NginxManageTool) PreviewCommand(ctx context.Context, sess *tools.Session, params json.RawMessage) (string, error) {
	return t.buildCommand(params)
}

func (t *NginxManageTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	command, err := t.buildCommand(params)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}
	return runRemote(sess, command, defaultTimeout)
}

// SSLCertificateTool drives certbot for obtain/renew/revoke/list.
type SSLCertificateTool struct{}

func NewSSLCertificateTool() *SSLCertificateTool { return &SSLCertificateTool{} }

func (t *SSLCertificateTool) Name() string        { return "ssl_certificate" }
func (t *SSLCertificateTool) Description() string { return "Obtain, renew, revoke, delete, or list certbot-managed TLS certificates." }
func (t *SSLCertificateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["obtain", "renew", "revoke", "delete", "list"]},
			"domain": {"type": "string"}
		},
		"required": ["action"]
	}`)
}
func (t *SSLCertificateTool) RequiresApproval(params json.RawMessage) bool {
	return tools.IntrinsicallyDangerous(t.Name(), params)
}
func (t *SSLCertificateTool) buildCommand(params json.RawMessage) (string, error) {
	var p struct {
		Action string `json:"action"`
		Domain string `json:"domain"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	action := strings.ToLower(p.Action)
	if action == "list" {
		return "certbot certificates", nil
	}
	if strings.TrimSpace(p.Domain) == "" {
		return "", fmt.Errorf("domain is required")
	}
	domain := shellQuote(p.Domain)

	switch action {
	case "obtain":
		return fmt.Sprintf("certbot --nginx -d %s --non-interactive --agree-tos", domain), nil
	case "renew":
		return fmt.Sprintf("certbot renew --cert-name %s --non-interactive", domain), nil
	case "revoke":
		return fmt.Sprintf("certbot revoke --cert-name %s --non-interactive --delete-after-revoke", domain), nil
	case "delete":
		return fmt.Sprintf("certbot delete --cert-name %s --non-interactive", domain), nil
	default:
		return "", fmt.Errorf("unsupported action: %s", p.Action)
	}
}

// PreviewCommand implements tools.CommandPreviewer.
func (t *SSLCertificateTool) PreviewCommand(ctx context.Context, sess *tools.Session, params json.RawMessage) (string, error) {
	return t.buildCommand(params)
}

func (t *SSLCertificateTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	command, err := t.buildCommand(params)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}
	return runRemote(sess, command, defaultTimeout)
}

// DatabaseQueryTool runs a psql or mysql client command remotely.
type DatabaseQueryTool struct{}

func NewDatabaseQueryTool() *DatabaseQueryTool { return &DatabaseQueryTool{} }

func (t *DatabaseQueryTool) Name() string        { return "database_query" }
func (t *DatabaseQueryTool) Description() string { return "Run a SQL statement against a remote Postgres or MySQL instance." }
func (t *DatabaseQueryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"engine": {"type": "string", "enum": ["postgres", "mysql"]},
			"dsn": {"type": "string", "description": "Connection string/DSN as understood by psql/mysql."},
			"statement": {"type": "string"}
		},
		"required": ["engine", "dsn", "statement"]
	}`)
}
func (t *DatabaseQueryTool) RequiresApproval(params json.RawMessage) bool {
	return tools.IntrinsicallyDangerous(t.Name(), params)
}
func (t *DatabaseQueryTool) buildCommand(params json.RawMessage) (string, error) {
	var p struct {
		Engine    string `json:"engine"`
		DSN       string `json:"dsn"`
		Statement string `json:"statement"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(p.Statement) == "" {
		return "", fmt.Errorf("statement is required")
	}

	switch strings.ToLower(p.Engine) {
	case "postgres":
		return fmt.Sprintf("psql %s -c %s", shellQuote(p.DSN), shellQuote(p.Statement)), nil
	case "mysql":
		return fmt.Sprintf("mysql %s -e %s", shellQuote(p.DSN), shellQuote(p.Statement)), nil
	default:
		return "", fmt.Errorf("unsupported engine: %s", p.Engine)
	}
}

// PreviewCommand implements tools.CommandPreviewer.
func (t *DatabaseQueryTool) PreviewCommand(ctx context.Context, sess *tools.Session, params json.RawMessage) (string, error) {
	return t.buildCommand(params)
}

func (t *DatabaseQueryTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	command, err := t.buildCommand(params)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}
	return runRemote(sess, command, defaultTimeout)
}
