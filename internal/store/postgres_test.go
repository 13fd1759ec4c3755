package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftlabs/vpsagent/pkg/models"
)

// setupMockDB mirrors the teacher's jobs.setupMockDB: a sqlmock-backed
// *Postgres with no real connection.
func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Postgres) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, &Postgres{db: db}
}

func TestPostgresCreateUser(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec("INSERT INTO users").
		WithArgs("u1", "ops@example.com", "Ops", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateUser(context.Background(), &models.User{
		ID: "u1", Email: "ops@example.com", Name: "Ops", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetUserNotFound(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresGetUserScansRow(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "name", "created_at", "updated_at"}).
		AddRow("u1", "ops@example.com", sql.NullString{String: "Ops", Valid: true}, now, now)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").WithArgs("u1").WillReturnRows(rows)

	user, err := store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", user.Email)
	assert.Equal(t, "Ops", user.Name)
}

func TestPostgresConsumeOTPNotFound(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("UPDATE otps SET consumed_at").
		WithArgs("a@b.com", "000000").
		WillReturnError(sql.ErrNoRows)

	_, err := store.ConsumeOTP(context.Background(), "a@b.com", "000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresGetServerScansAllFields(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "name", "host", "port", "username", "auth_method",
		"encrypted_credential", "last_connected_at",
	}).AddRow("s1", "u1", "web-1", "1.2.3.4", 22, "root", "key", "enc:cred", sql.NullTime{})
	mock.ExpectQuery("SELECT (.+) FROM servers WHERE id").WithArgs("s1").WillReturnRows(rows)

	server, err := store.GetServer(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.AuthKey, server.AuthMethod)
	assert.Nil(t, server.LastConnectedAt)
}

func TestPostgresUpdateServerNoRowsReturnsNotFound(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec("UPDATE servers SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateServer(context.Background(), &models.Server{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresAppendCommandHistoryDatabaseError(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO command_history").WillReturnError(errors.New("connection refused"))

	err := store.AppendCommandHistory(context.Background(), &models.CommandHistory{
		ID: "h1", VPSServerID: "s1", Command: "ls",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "append command history")
}

func TestPostgresRecentCommandsReversesToOldestFirst(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "vps_server_id", "command", "output", "exit_code", "executed_at"}).
		AddRow("h2", "u1", "s1", "second", "", 0, now).
		AddRow("h1", "u1", "s1", "first", "", 0, now.Add(-time.Minute))
	mock.ExpectQuery("SELECT (.+) FROM command_history").WithArgs("s1", 10).WillReturnRows(rows)

	history, err := store.RecentCommands(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Command)
	assert.Equal(t, "second", history[1].Command)
}

func TestPostgresGitHubTokenReturnsEmptyWhenUnset(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM github_integrations WHERE user_id").
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	token, err := store.GitHubToken(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "", token)
}

func TestPostgresBackupConfigsUnmarshalsNestedColumns(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "name", "vps_server_id", "repository_type", "repository_path", "encrypted_password",
		"access_key_id", "secret_access_key", "endpoint", "region", "include_paths",
		"exclude_patterns", "retention", "schedule", "unattended",
	}).AddRow(
		"b1", "nightly", "s1", "s3", "repo/path", "enc:pw",
		sql.NullString{}, sql.NullString{}, sql.NullString{}, sql.NullString{},
		[]byte(`["/etc","/var/www"]`), []byte(`["*.log"]`),
		[]byte(`{"daily":7,"weekly":4,"monthly":6,"yearly":1}`),
		sql.NullString{String: "0 3 * * *", Valid: true}, false,
	)
	mock.ExpectQuery("SELECT (.+) FROM backup_configs WHERE vps_server_id").WithArgs("s1").WillReturnRows(rows)

	configs, err := store.BackupConfigs(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, []string{"/etc", "/var/www"}, configs[0].IncludePaths)
	assert.Equal(t, 7, configs[0].Retention.Daily)
	assert.Equal(t, "0 3 * * *", configs[0].Schedule)
}

func TestPostgresAppendApiUsage(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec("INSERT INTO api_usage").
		WithArgs("id1", "u1", "", "claude-opus-4", 10, 20, 30, "0.01", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.AppendApiUsage(context.Background(), &models.ApiUsage{
		ID: "id1", UserID: "u1", Model: "claude-opus-4",
		InputTokens: 10, OutputTokens: 20, TotalTokens: 30, EstimatedCost: "0.01", CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNullableStringEmptyIsInvalid(t *testing.T) {
	assert.False(t, nullableString("").Valid)
	ns := nullableString("x")
	assert.True(t, ns.Valid)
	assert.Equal(t, "x", ns.String)
}

func TestNullTimeNilIsInvalid(t *testing.T) {
	assert.False(t, nullTime(nil).Valid)
	now := time.Now()
	nt := nullTime(&now)
	assert.True(t, nt.Valid)
}

func TestNewPostgresFromDSNRequiresDSN(t *testing.T) {
	_, err := NewPostgresFromDSN("", nil)
	assert.Error(t, err)
}

func TestPostgresSatisfiesStoreInterface(t *testing.T) {
	var _ Store = (*Postgres)(nil)
}

func TestMemorySatisfiesStoreInterface(t *testing.T) {
	var _ Store = (*Memory)(nil)
}
