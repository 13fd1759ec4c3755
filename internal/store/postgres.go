package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/google/uuid"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// PostgresConfig mirrors the teacher's jobs.CockroachConfig — the agent's
// backing store is expected to be CockroachDB or plain Postgres interchangeably,
// both served by the same lib/pq wire driver.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns sane pool defaults, same numbers the teacher
// ships in DefaultCockroachConfig.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Postgres is a lib/pq-backed Store, grounded on the teacher's
// internal/jobs/cockroach.go CockroachStore: sql.DB wrapped with
// context-scoped Exec/QueryRow/Query calls, NullTime/NullString for
// optional columns, JSON columns for nested structs.
type Postgres struct {
	db *sql.DB
}

// NewPostgresFromDSN opens and pings a connection pool per dsn.
func NewPostgresFromDSN(dsn string, cfg *PostgresConfig) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: dsn is required")
	}
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// --- Users ---

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, email, name, created_at, updated_at FROM users WHERE lower(email) = lower($1)
	`, email)
	return scanUser(row)
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, email, name, created_at, updated_at FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

func (p *Postgres) CreateUser(ctx context.Context, user *models.User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var name sql.NullString
	err := row.Scan(&u.ID, &u.Email, &name, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	u.Name = name.String
	return &u, nil
}

// --- OTP ---

func (p *Postgres) CreateOTP(ctx context.Context, otp *models.OTP) error {
	if otp.ID == "" {
		otp.ID = uuid.NewString()
	}
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = time.Now()
	}
	if otp.ExpiresAt.IsZero() {
		otp.ExpiresAt = otp.CreatedAt.Add(otpTTL)
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO otps (id, email, code, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, otp.ID, otp.Email, otp.Code, otp.ExpiresAt, otp.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create otp: %w", err)
	}
	return nil
}

func (p *Postgres) ConsumeOTP(ctx context.Context, email, code string) (*models.OTP, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE otps SET consumed_at = now()
		WHERE id = (
			SELECT id FROM otps
			WHERE lower(email) = lower($1) AND code = $2
			  AND consumed_at IS NULL AND expires_at > now()
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING id, email, code, expires_at, consumed_at, created_at
	`, email, code)

	var otp models.OTP
	var consumedAt sql.NullTime
	err := row.Scan(&otp.ID, &otp.Email, &otp.Code, &otp.ExpiresAt, &consumedAt, &otp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: consume otp: %w", err)
	}
	if consumedAt.Valid {
		otp.ConsumedAt = &consumedAt.Time
	}
	return &otp, nil
}

// --- Servers ---

func (p *Postgres) CreateServer(ctx context.Context, server *models.Server) error {
	if server.ID == "" {
		server.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO servers (id, user_id, name, host, port, username, auth_method, encrypted_credential)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, server.ID, server.UserID, server.Name, server.Host, server.Port, server.Username,
		string(server.AuthMethod), server.EncryptedCredential)
	if err != nil {
		return fmt.Errorf("store: create server: %w", err)
	}
	return nil
}

func (p *Postgres) GetServer(ctx context.Context, serverID string) (*models.Server, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, host, port, username, auth_method, encrypted_credential, last_connected_at
		FROM servers WHERE id = $1
	`, serverID)
	return scanServer(row)
}

func (p *Postgres) ListServers(ctx context.Context, userID string) ([]*models.Server, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, name, host, port, username, auth_method, encrypted_credential, last_connected_at
		FROM servers WHERE user_id = $1 ORDER BY name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list servers: %w", err)
	}
	defer rows.Close()

	var out []*models.Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateServer(ctx context.Context, server *models.Server) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE servers SET name=$2, host=$3, port=$4, username=$5, auth_method=$6,
			encrypted_credential=$7, last_connected_at=$8
		WHERE id=$1
	`, server.ID, server.Name, server.Host, server.Port, server.Username,
		string(server.AuthMethod), server.EncryptedCredential, nullTime(server.LastConnectedAt))
	if err != nil {
		return fmt.Errorf("store: update server: %w", err)
	}
	return checkRowsAffected(res)
}

func (p *Postgres) DeleteServer(ctx context.Context, serverID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM servers WHERE id=$1`, serverID)
	if err != nil {
		return fmt.Errorf("store: delete server: %w", err)
	}
	return checkRowsAffected(res)
}

func scanServer(row rowScanner) (*models.Server, error) {
	var s models.Server
	var authMethod string
	var lastConnected sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Host, &s.Port, &s.Username,
		&authMethod, &s.EncryptedCredential, &lastConnected)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan server: %w", err)
	}
	s.AuthMethod = models.AuthMethod(authMethod)
	if lastConnected.Valid {
		s.LastConnectedAt = &lastConnected.Time
	}
	return &s, nil
}

// --- Conversations ---

func (p *Postgres) GetOrCreateConversation(ctx context.Context, userID, serverID, conversationID string) (*models.Conversation, error) {
	if conversationID != "" {
		if c, err := p.GetConversation(ctx, conversationID); err == nil {
			return c, nil
		} else if err != ErrNotFound {
			return nil, err
		}
	}

	id := conversationID
	if id == "" {
		id = uuid.NewString()
	}
	c := &models.Conversation{
		ID:          id,
		UserID:      userID,
		VPSServerID: serverID,
		Mode:        models.ModeAgent,
		IsActive:    true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, vps_server_id, title, mode, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.UserID, c.VPSServerID, c.Title, string(c.Mode), c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create conversation: %w", err)
	}
	return c, nil
}

func (p *Postgres) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, vps_server_id, title, mode, parent_conversation_id, context_summary,
			archive_url, archived_at, is_active, created_at, updated_at
		FROM conversations WHERE id = $1
	`, conversationID)
	return scanConversation(row)
}

func (p *Postgres) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, vps_server_id, title, mode, parent_conversation_id, context_summary,
			archive_url, archived_at, is_active, created_at, updated_at
		FROM conversations WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateConversation(ctx context.Context, c *models.Conversation) error {
	c.UpdatedAt = time.Now()
	res, err := p.db.ExecContext(ctx, `
		UPDATE conversations SET title=$2, mode=$3, context_summary=$4, archive_url=$5,
			archived_at=$6, is_active=$7, updated_at=$8
		WHERE id=$1
	`, c.ID, c.Title, string(c.Mode), c.ContextSummary, c.ArchiveURL,
		nullTime(c.ArchivedAt), c.IsActive, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: update conversation: %w", err)
	}
	return checkRowsAffected(res)
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	var mode string
	var parentID, contextSummary, archiveURL sql.NullString
	var archivedAt sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &c.VPSServerID, &c.Title, &mode, &parentID, &contextSummary,
		&archiveURL, &archivedAt, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan conversation: %w", err)
	}
	c.Mode = models.ConversationMode(mode)
	c.ParentID = parentID.String
	c.ContextSummary = contextSummary.String
	c.ArchiveURL = archiveURL.String
	if archivedAt.Valid {
		c.ArchivedAt = &archivedAt.Time
	}
	return &c, nil
}

// --- Messages ---

func (p *Postgres) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, attachments, metadata, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var role string
		var attachmentsJSON, metadataJSON []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &attachmentsJSON, &metadataJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.Role = models.Role(role)
		if len(attachmentsJSON) > 0 {
			if err := json.Unmarshal(attachmentsJSON, &m.Attachments); err != nil {
				return nil, fmt.Errorf("store: unmarshal attachments: %w", err)
			}
		}
		if len(metadataJSON) > 0 {
			var meta models.MessageMetadata
			if err := json.Unmarshal(metadataJSON, &meta); err != nil {
				return nil, fmt.Errorf("store: unmarshal message metadata: %w", err)
			}
			m.Metadata = &meta
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendMessage(ctx context.Context, msg *models.Message) error {
	attachmentsJSON, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("store: marshal attachments: %w", err)
	}
	var metadataJSON []byte
	if msg.Metadata != nil {
		metadataJSON, err = json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("store: marshal message metadata: %w", err)
		}
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, attachments, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, msg.ID, msg.ConversationID, string(msg.Role), msg.Content, attachmentsJSON, metadataJSON, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// --- Conversation summaries ---

func (p *Postgres) ListConversationSummaries(ctx context.Context, conversationID string) ([]models.ConversationSummary, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, conversation_id, summary, message_range, token_count, created_at
		FROM conversation_summaries WHERE conversation_id = $1 ORDER BY created_at
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: list conversation summaries: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationSummary
	for rows.Next() {
		var s models.ConversationSummary
		if err := rows.Scan(&s.ID, &s.ConversationID, &s.Summary, &s.MessageRange, &s.TokenCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan conversation summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendConversationSummary(ctx context.Context, summary *models.ConversationSummary) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO conversation_summaries (id, conversation_id, summary, message_range, token_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, summary.ID, summary.ConversationID, summary.Summary, summary.MessageRange, summary.TokenCount, summary.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: append conversation summary: %w", err)
	}
	return nil
}

// --- Command history ---

func (p *Postgres) AppendCommandHistory(ctx context.Context, entry *models.CommandHistory) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO command_history (id, user_id, vps_server_id, command, output, exit_code, executed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.UserID, entry.VPSServerID, entry.Command, entry.Output, entry.ExitCode, entry.ExecutedAt)
	if err != nil {
		return fmt.Errorf("store: append command history: %w", err)
	}
	return nil
}

func (p *Postgres) RecentCommands(ctx context.Context, serverID string, limit int) ([]models.CommandHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, vps_server_id, command, output, exit_code, executed_at
		FROM command_history WHERE vps_server_id = $1 ORDER BY executed_at DESC LIMIT $2
	`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent commands: %w", err)
	}
	defer rows.Close()

	var out []models.CommandHistory
	for rows.Next() {
		var h models.CommandHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.VPSServerID, &h.Command, &h.Output, &h.ExitCode, &h.ExecutedAt); err != nil {
			return nil, fmt.Errorf("store: scan command history: %w", err)
		}
		out = append(out, h)
	}
	// Query returns newest-first; RecentCommands callers (the system prompt
	// builder) expect oldest-first like the in-memory Store, so reverse.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// --- GitHub integration ---

func (p *Postgres) GetGitHubIntegration(ctx context.Context, userID string) (*models.GitHubIntegration, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, repo_url, branch, encrypted_token, created_at, updated_at
		FROM github_integrations WHERE user_id = $1
	`, userID)
	return scanGitHubIntegration(row)
}

func (p *Postgres) UpsertGitHubIntegration(ctx context.Context, integration *models.GitHubIntegration) error {
	if integration.ID == "" {
		integration.ID = uuid.NewString()
	}
	now := time.Now()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO github_integrations (id, user_id, repo_url, branch, encrypted_token, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id) DO UPDATE SET
			repo_url = excluded.repo_url,
			branch = excluded.branch,
			encrypted_token = excluded.encrypted_token,
			updated_at = excluded.updated_at
	`, integration.ID, integration.UserID, integration.RepoURL, integration.Branch,
		integration.EncryptedToken, now, now)
	if err != nil {
		return fmt.Errorf("store: upsert github integration: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteGitHubIntegration(ctx context.Context, userID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM github_integrations WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("store: delete github integration: %w", err)
	}
	return checkRowsAffected(res)
}

func (p *Postgres) GitHubToken(ctx context.Context, userID string) (string, error) {
	g, err := p.GetGitHubIntegration(ctx, userID)
	if err == ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return g.EncryptedToken, nil
}

func (p *Postgres) GitHubContext(ctx context.Context, userID string) (repoURL, branch string, ok bool) {
	g, err := p.GetGitHubIntegration(ctx, userID)
	if err != nil || g.RepoURL == "" {
		return "", "", false
	}
	return g.RepoURL, g.Branch, true
}

func scanGitHubIntegration(row rowScanner) (*models.GitHubIntegration, error) {
	var g models.GitHubIntegration
	err := row.Scan(&g.ID, &g.UserID, &g.RepoURL, &g.Branch, &g.EncryptedToken, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan github integration: %w", err)
	}
	return &g, nil
}

// --- Backup configs ---

func (p *Postgres) BackupConfigs(ctx context.Context, serverID string) ([]*models.BackupConfig, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, vps_server_id, repository_type, repository_path, encrypted_password,
			access_key_id, secret_access_key, endpoint, region, include_paths, exclude_patterns,
			retention, schedule, unattended
		FROM backup_configs WHERE vps_server_id = $1
	`, serverID)
	if err != nil {
		return nil, fmt.Errorf("store: list backup configs: %w", err)
	}
	defer rows.Close()

	var out []*models.BackupConfig
	for rows.Next() {
		c, err := scanBackupConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListScheduledBackupConfigs returns every BackupConfig with a non-empty
// Schedule, across all servers, for the Scheduler to re-register on
// startup after a restart.
func (p *Postgres) ListScheduledBackupConfigs(ctx context.Context) ([]*models.BackupConfig, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, vps_server_id, repository_type, repository_path, encrypted_password,
			access_key_id, secret_access_key, endpoint, region, include_paths, exclude_patterns,
			retention, schedule, unattended
		FROM backup_configs WHERE schedule IS NOT NULL AND schedule != ''
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list scheduled backup configs: %w", err)
	}
	defer rows.Close()

	var out []*models.BackupConfig
	for rows.Next() {
		c, err := scanBackupConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) GetBackupConfig(ctx context.Context, id string) (*models.BackupConfig, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, vps_server_id, repository_type, repository_path, encrypted_password,
			access_key_id, secret_access_key, endpoint, region, include_paths, exclude_patterns,
			retention, schedule, unattended
		FROM backup_configs WHERE id = $1
	`, id)
	return scanBackupConfig(row)
}

func (p *Postgres) CreateBackupConfig(ctx context.Context, c *models.BackupConfig) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	includePaths, err := json.Marshal(c.IncludePaths)
	if err != nil {
		return fmt.Errorf("store: marshal include paths: %w", err)
	}
	excludePatterns, err := json.Marshal(c.ExcludePatterns)
	if err != nil {
		return fmt.Errorf("store: marshal exclude patterns: %w", err)
	}
	retention, err := json.Marshal(c.Retention)
	if err != nil {
		return fmt.Errorf("store: marshal retention: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO backup_configs (id, name, vps_server_id, repository_type, repository_path,
			encrypted_password, access_key_id, secret_access_key, endpoint, region,
			include_paths, exclude_patterns, retention, schedule, unattended)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, c.ID, c.Name, c.VPSServerID, string(c.RepositoryType), c.RepositoryPath,
		c.EncryptedPassword, nullableString(c.AccessKeyID), nullableString(c.SecretAccessKey),
		nullableString(c.Endpoint), nullableString(c.Region), includePaths, excludePatterns,
		retention, nullableString(c.Schedule), c.Unattended)
	if err != nil {
		return fmt.Errorf("store: create backup config: %w", err)
	}
	return nil
}

func scanBackupConfig(row rowScanner) (*models.BackupConfig, error) {
	var c models.BackupConfig
	var repoType string
	var accessKeyID, secretAccessKey, endpoint, region, schedule sql.NullString
	var includePaths, excludePatterns, retention []byte
	err := row.Scan(&c.ID, &c.Name, &c.VPSServerID, &repoType, &c.RepositoryPath, &c.EncryptedPassword,
		&accessKeyID, &secretAccessKey, &endpoint, &region, &includePaths, &excludePatterns,
		&retention, &schedule, &c.Unattended)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan backup config: %w", err)
	}
	c.RepositoryType = models.RepositoryType(repoType)
	c.AccessKeyID = accessKeyID.String
	c.SecretAccessKey = secretAccessKey.String
	c.Endpoint = endpoint.String
	c.Region = region.String
	c.Schedule = schedule.String
	if len(includePaths) > 0 {
		if err := json.Unmarshal(includePaths, &c.IncludePaths); err != nil {
			return nil, fmt.Errorf("store: unmarshal include paths: %w", err)
		}
	}
	if len(excludePatterns) > 0 {
		if err := json.Unmarshal(excludePatterns, &c.ExcludePatterns); err != nil {
			return nil, fmt.Errorf("store: unmarshal exclude patterns: %w", err)
		}
	}
	if len(retention) > 0 {
		if err := json.Unmarshal(retention, &c.Retention); err != nil {
			return nil, fmt.Errorf("store: unmarshal retention: %w", err)
		}
	}
	return &c, nil
}

// --- Usage ---

func (p *Postgres) AppendApiUsage(ctx context.Context, usage *models.ApiUsage) error {
	if usage.ID == "" {
		usage.ID = uuid.NewString()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_usage (id, user_id, conversation_id, model, input_tokens, output_tokens,
			total_tokens, estimated_cost, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, usage.ID, usage.UserID, usage.ConversationID, usage.Model, usage.InputTokens,
		usage.OutputTokens, usage.TotalTokens, usage.EstimatedCost, usage.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: append api usage: %w", err)
	}
	return nil
}

// RecordResearchUsage implements research.UsageRecorder the same way
// Memory.RecordResearchUsage does: an ApiUsage row under the research
// model id, errors swallowed since the interface has no error return.
func (p *Postgres) RecordResearchUsage(ctx context.Context, userID, model string, inputTokens, outputTokens int) {
	_ = p.AppendApiUsage(ctx, &models.ApiUsage{
		UserID:       userID,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
	})
}

func nullableString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil || v.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
