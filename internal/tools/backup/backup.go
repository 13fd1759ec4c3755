// Package backup implements the backup_create tool and the restic_*
// family, each shelling to restic on the remote host with repository flags
// derived from a decrypted BackupConfig.
package backup

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

const defaultTimeout = 120 * time.Second

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

func findConfig(ctx context.Context, sess *tools.Session, configID string) (*models.BackupConfig, error) {
	configs, err := sess.Store.BackupConfigs(ctx, sess.ServerID)
	if err != nil {
		return nil, err
	}
	for _, c := range configs {
		if c.ID == configID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("backup config not found: %s", configID)
}

// repoEnv builds the shell environment-variable prefix restic needs for a
// config's repository type (password plus, for S3/B2, access credentials).
func repoEnv(cfg *models.BackupConfig, password string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RESTIC_PASSWORD=%s RESTIC_REPOSITORY=%s", shellQuote(password), shellQuote(cfg.RepositoryPath))
	switch cfg.RepositoryType {
	case models.RepoS3, models.RepoB2:
		if cfg.AccessKeyID != "" {
			fmt.Fprintf(&b, " AWS_ACCESS_KEY_ID=%s", shellQuote(cfg.AccessKeyID))
		}
		if cfg.SecretAccessKey != "" {
			fmt.Fprintf(&b, " AWS_SECRET_ACCESS_KEY=%s", shellQuote(cfg.SecretAccessKey))
		}
	}
	return b.String()
}

// SchedulerRegisterer is the narrow Scheduler port BackupCreateTool needs:
// begin firing a newly created config's schedule immediately, without
// requiring vpsagentd to restart before it takes effect.
type SchedulerRegisterer interface {
	Register(cfg *models.BackupConfig) error
}

// BackupCreateTool validates a proposed BackupConfig shape, persists it via
// the Store, and — if it carries a Schedule — registers it with the
// Scheduler so restic_backup starts firing on cron without a restart.
type BackupCreateTool struct {
	scheduler SchedulerRegisterer
}

// NewBackupCreateTool builds a BackupCreateTool. scheduler may be nil (as
// in tests that don't exercise scheduling), in which case a config with a
// Schedule is still persisted but only begins firing after the next
// vpsagentd startup re-registers every schedule from the Store.
func NewBackupCreateTool(scheduler SchedulerRegisterer) *BackupCreateTool {
	return &BackupCreateTool{scheduler: scheduler}
}

func (t *BackupCreateTool) Name() string        { return "backup_create" }
func (t *BackupCreateTool) Description() string { return "Define a restic backup configuration and retention policy for this server." }
func (t *BackupCreateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"repository_type": {"type": "string", "enum": ["local", "s3", "sftp", "b2"]},
			"repository_path": {"type": "string"},
			"include_paths": {"type": "array", "items": {"type": "string"}},
			"exclude_patterns": {"type": "array", "items": {"type": "string"}},
			"schedule": {"type": "string", "description": "Cron expression."},
			"unattended": {"type": "boolean"}
		},
		"required": ["name", "repository_type", "repository_path", "include_paths"]
	}`)
}
func (t *BackupCreateTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *BackupCreateTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var cfg models.BackupConfig
	if err := json.Unmarshal(params, &cfg); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(cfg.Name) == "" || strings.TrimSpace(cfg.RepositoryPath) == "" {
		return tools.ErrorResult("name and repository_path are required"), nil
	}
	cfg.VPSServerID = sess.ServerID

	if err := sess.Store.CreateBackupConfig(ctx, &cfg); err != nil {
		return tools.ErrorResult("persist backup config: " + err.Error()), nil
	}
	if cfg.Schedule != "" && t.scheduler != nil {
		if err := t.scheduler.Register(&cfg); err != nil {
			return tools.ErrorResult("register schedule: " + err.Error()), nil
		}
	}
	return tools.JSONResult(cfg), nil
}

// BackupGetPasswordTool decrypts a BackupConfig's stored password via the
// session's ENCRYPTION_KEY-derived vault. It exists as its own tool, rather
// than folded into resticTool.buildCommand, so the restic_* schemas and the
// approval-previewed command string never change shape: the LLM calls this
// first, then passes the returned password into the restic_* call's own
// password parameter. This is the only place EncryptedPassword is read.
type BackupGetPasswordTool struct{}

func NewBackupGetPasswordTool() tools.Tool { return &BackupGetPasswordTool{} }

func (t *BackupGetPasswordTool) Name() string { return "backup_get_password" }
func (t *BackupGetPasswordTool) Description() string {
	return "Decrypt the stored restic repository password for a backup configuration."
}
func (t *BackupGetPasswordTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"config_id": {"type": "string"}
		},
		"required": ["config_id"]
	}`)
}
func (t *BackupGetPasswordTool) RequiresApproval(json.RawMessage) bool { return false }
func (t *BackupGetPasswordTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		ConfigID string `json:"config_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if sess.BackupVault == nil {
		return tools.ErrorResult("backup vault not configured"), nil
	}
	cfg, err := findConfig(ctx, sess, p.ConfigID)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}
	if cfg.EncryptedPassword == "" {
		return tools.ErrorResult("backup config has no stored password"), nil
	}
	password, err := sess.BackupVault.DecryptString(cfg.EncryptedPassword)
	if err != nil {
		return tools.ErrorResult("decrypt password: " + err.Error()), nil
	}
	return tools.JSONResult(map[string]string{"config_id": cfg.ID, "password": password}), nil
}

// resticTool is shared shape for every restic_* tool: look up the named
// BackupConfig, decrypt its password, build a restic invocation.
type resticTool struct {
	name   string
	verb   string
	action func(cfg *models.BackupConfig, env string, p map[string]any) string
}

func (t *resticTool) Name() string        { return t.name }
func (t *resticTool) Description() string { return "Run restic " + t.verb + " against a server's configured backup repository." }
func (t *resticTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"config_id": {"type": "string"},
			"password": {"type": "string", "description": "Decrypted restic repository password."},
			"snapshot_id": {"type": "string"},
			"target": {"type": "string", "description": "Restore/mount target path."},
			"unattended": {"type": "boolean", "description": "Set by the scheduler for a BackupConfig created with unattended=true; bypasses the approval gate."}
		},
		"required": ["config_id", "password"]
	}`)
}
func (t *resticTool) RequiresApproval(params json.RawMessage) bool {
	return tools.IntrinsicallyDangerous(t.name, params)
}

func (t *resticTool) buildCommand(ctx context.Context, sess *tools.Session, params json.RawMessage) (string, error) {
	var p struct {
		ConfigID   string `json:"config_id"`
		Password   string `json:"password"`
		SnapshotID string `json:"snapshot_id"`
		Target     string `json:"target"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(p.ConfigID) == "" || p.Password == "" {
		return "", fmt.Errorf("config_id and password are required")
	}
	cfg, err := findConfig(ctx, sess, p.ConfigID)
	if err != nil {
		return "", err
	}
	env := repoEnv(cfg, p.Password)
	return t.action(cfg, env, map[string]any{"snapshot_id": p.SnapshotID, "target": p.Target}), nil
}

// PreviewCommand implements tools.CommandPreviewer. It still resolves the
// BackupConfig from the Store (a local lookup, not a remote call) so the
// previewed command carries the same repository flags Execute would use.
func (t *resticTool) PreviewCommand(ctx context.Context, sess *tools.Session, params json.RawMessage) (string, error) {
	return t.buildCommand(ctx, sess, params)
}

func (t *resticTool) Execute(ctx context.Context, sess *tools.Session, params json.RawMessage) (*models.ToolResult, error) {
	command, err := t.buildCommand(ctx, sess, params)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}
	return runRemote(sess, command, defaultTimeout)
}

func NewResticInitTool() tools.Tool {
	return &resticTool{name: "restic_init", verb: "init", action: func(cfg *models.BackupConfig, env string, _ map[string]any) string {
		return fmt.Sprintf("%s restic init", env)
	}}
}

func NewResticBackupTool() tools.Tool {
	return &resticTool{name: "restic_backup", verb: "backup", action: func(cfg *models.BackupConfig, env string, _ map[string]any) string {
		paths := quoteAll(cfg.IncludePaths)
		excludes := ""
		for _, pat := range cfg.ExcludePatterns {
			excludes += " --exclude " + shellQuote(pat)
		}
		return fmt.Sprintf("%s restic backup %s%s", env, strings.Join(paths, " "), excludes)
	}}
}

func NewResticListTool() tools.Tool {
	return &resticTool{name: "restic_list", verb: "snapshots", action: func(cfg *models.BackupConfig, env string, _ map[string]any) string {
		return fmt.Sprintf("%s restic snapshots", env)
	}}
}

func NewResticRestoreTool() tools.Tool {
	return &resticTool{name: "restic_restore", verb: "restore", action: func(cfg *models.BackupConfig, env string, p map[string]any) string {
		snapshot := stringOrLatest(p["snapshot_id"])
		target := shellQuote(stringOrDefault(p["target"], "/"))
		return fmt.Sprintf("%s restic restore %s --target %s", env, shellQuote(snapshot), target)
	}}
}

func NewResticVerifyTool() tools.Tool {
	return &resticTool{name: "restic_verify", verb: "check", action: func(cfg *models.BackupConfig, env string, _ map[string]any) string {
		return fmt.Sprintf("%s restic check", env)
	}}
}

func NewResticPruneTool() tools.Tool {
	return &resticTool{name: "restic_prune", verb: "forget --prune", action: func(cfg *models.BackupConfig, env string, _ map[string]any) string {
		r := cfg.Retention
		return fmt.Sprintf("%s restic forget --keep-daily %d --keep-weekly %d --keep-monthly %d --keep-yearly %d --prune",
			env, r.Daily, r.Weekly, r.Monthly, r.Yearly)
	}}
}

func NewResticStatsTool() tools.Tool {
	return &resticTool{name: "restic_stats", verb: "stats", action: func(cfg *models.BackupConfig, env string, _ map[string]any) string {
		return fmt.Sprintf("%s restic stats", env)
	}}
}

func NewResticDiffTool() tools.Tool {
	return &resticTool{name: "restic_diff", verb: "diff", action: func(cfg *models.BackupConfig, env string, p map[string]any) string {
		snapshot := stringOrLatest(p["snapshot_id"])
		return fmt.Sprintf("%s restic diff %s %s", env, shellQuote(snapshot), "latest")
	}}
}

func NewResticMountTool() tools.Tool {
	return &resticTool{name: "restic_mount", verb: "mount", action: func(cfg *models.BackupConfig, env string, p map[string]any) string {
		target := shellQuote(stringOrDefault(p["target"], "/mnt/restic"))
		return fmt.Sprintf("mkdir -p %s && %s restic mount %s &", target, env, target)
	}}
}

func quoteAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = shellQuote(p)
	}
	return out
}

func stringOrLatest(v any) string {
	s, _ := v.(string)
	if s == "" {
		return "latest"
	}
	return s
}

func stringOrDefault(v any, def string) string {
	s, _ := v.(string)
	if s == "" {
		return def
	}
	return s
}
