package backup

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// fakeStore is the minimal tools.CredentialStore for backup tests: only
// BackupConfigs is exercised, so GitHubToken just errors if ever called.
type fakeStore struct {
	configs []*models.BackupConfig
	created []*models.BackupConfig
}

func (s *fakeStore) GitHubToken(ctx context.Context, userID string) (string, error) {
	return "", assert.AnError
}

func (s *fakeStore) BackupConfigs(ctx context.Context, serverID string) ([]*models.BackupConfig, error) {
	return s.configs, nil
}

func (s *fakeStore) CreateBackupConfig(ctx context.Context, config *models.BackupConfig) error {
	s.created = append(s.created, config)
	return nil
}

// fakeScheduler records Register calls so BackupCreateTool's wiring to a
// SchedulerRegisterer can be asserted without a real cron.Cron.
type fakeScheduler struct {
	registered []*models.BackupConfig
}

func (f *fakeScheduler) Register(cfg *models.BackupConfig) error {
	f.registered = append(f.registered, cfg)
	return nil
}

// fakeVault decrypts by stripping a fixed prefix, just enough to prove
// BackupGetPasswordTool routes through sess.BackupVault rather than reading
// EncryptedPassword directly.
type fakeVault struct{}

func (fakeVault) DecryptString(serialized string) (string, error) {
	return serialized[len("enc:"):], nil
}

func TestBackupGetPasswordDecryptsViaVault(t *testing.T) {
	sess := &tools.Session{
		ServerID:    "srv-1",
		Store:       &fakeStore{configs: []*models.BackupConfig{{ID: "cfg-1", EncryptedPassword: "enc:hunter2"}}},
		BackupVault: fakeVault{},
	}
	tool := NewBackupGetPasswordTool()
	params, _ := json.Marshal(map[string]string{"config_id": "cfg-1"})

	result, err := tool.Execute(context.Background(), sess, params)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Contains(t, result.Output, "hunter2")
}

func TestBackupGetPasswordMissingVaultErrors(t *testing.T) {
	sess := &tools.Session{
		ServerID: "srv-1",
		Store:    &fakeStore{configs: []*models.BackupConfig{{ID: "cfg-1", EncryptedPassword: "enc:hunter2"}}},
	}
	tool := NewBackupGetPasswordTool()
	params, _ := json.Marshal(map[string]string{"config_id": "cfg-1"})

	result, err := tool.Execute(context.Background(), sess, params)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestRepoEnvLocal(t *testing.T) {
	cfg := &models.BackupConfig{RepositoryType: models.RepoLocal, RepositoryPath: "/srv/backups/repo"}
	env := repoEnv(cfg, "hunter2")
	assert.Contains(t, env, "RESTIC_PASSWORD='hunter2'")
	assert.Contains(t, env, "RESTIC_REPOSITORY='/srv/backups/repo'")
	assert.NotContains(t, env, "AWS_ACCESS_KEY_ID")
}

func TestRepoEnvS3IncludesCredentials(t *testing.T) {
	cfg := &models.BackupConfig{
		RepositoryType:  models.RepoS3,
		RepositoryPath:  "s3:s3.amazonaws.com/my-bucket",
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secretvalue",
	}
	env := repoEnv(cfg, "pw")
	assert.Contains(t, env, "AWS_ACCESS_KEY_ID='AKIAEXAMPLE'")
	assert.Contains(t, env, "AWS_SECRET_ACCESS_KEY='secretvalue'")
}

func TestResticBackupIncludesExcludes(t *testing.T) {
	cfg := &models.BackupConfig{
		IncludePaths:    []string{"/var/www", "/etc/nginx"},
		ExcludePatterns: []string{"*.log"},
	}
	tool := NewResticBackupTool().(*resticTool)
	command := tool.action(cfg, "ENV=x", nil)
	assert.Contains(t, command, "'/var/www'")
	assert.Contains(t, command, "'/etc/nginx'")
	assert.Contains(t, command, "--exclude '*.log'")
}

func TestResticPruneUsesRetention(t *testing.T) {
	cfg := &models.BackupConfig{Retention: models.RetentionPolicy{Daily: 7, Weekly: 4, Monthly: 6, Yearly: 1}}
	tool := NewResticPruneTool().(*resticTool)
	command := tool.action(cfg, "ENV=x", nil)
	assert.Contains(t, command, "--keep-daily 7")
	assert.Contains(t, command, "--keep-weekly 4")
	assert.Contains(t, command, "--keep-monthly 6")
	assert.Contains(t, command, "--keep-yearly 1")
}

func TestResticRestoreDefaultsSnapshotAndTarget(t *testing.T) {
	tool := NewResticRestoreTool().(*resticTool)
	command := tool.action(&models.BackupConfig{}, "ENV=x", map[string]any{})
	assert.Contains(t, command, "restic restore 'latest'")
	assert.Contains(t, command, "--target '/'")
}

func TestSchedulerRegisterSkipsEmptySchedule(t *testing.T) {
	s := NewScheduler(fakeVault{})
	s.SetDispatch(func(ctx context.Context, serverID, toolName string, params map[string]any) error {
		return nil
	})
	err := s.Register(&models.BackupConfig{ID: "cfg-1", Schedule: ""})
	require.NoError(t, err)
	assert.Empty(t, s.entries)
}

func TestSchedulerRegisterValidSchedule(t *testing.T) {
	s := NewScheduler(fakeVault{})
	s.SetDispatch(func(ctx context.Context, serverID, toolName string, params map[string]any) error {
		return nil
	})
	err := s.Register(&models.BackupConfig{ID: "cfg-2", Schedule: "0 3 * * *"})
	require.NoError(t, err)
	assert.Len(t, s.entries, 1)

	s.Unregister("cfg-2")
	assert.Empty(t, s.entries)
}

func TestBackupCreatePersistsAndRegistersSchedule(t *testing.T) {
	st := &fakeStore{}
	sched := &fakeScheduler{}
	sess := &tools.Session{ServerID: "srv-1", Store: st}
	tool := NewBackupCreateTool(sched)

	params, _ := json.Marshal(map[string]any{
		"name":             "nightly",
		"repository_type": "local",
		"repository_path":  "/srv/backups/repo",
		"schedule":         "0 3 * * *",
	})

	result, err := tool.Execute(context.Background(), sess, params)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, st.created, 1)
	assert.Equal(t, "/srv/backups/repo", st.created[0].RepositoryPath)
	require.Len(t, sched.registered, 1)
	assert.Equal(t, "0 3 * * *", sched.registered[0].Schedule)
}

func TestBackupCreateWithoutScheduleSkipsRegistration(t *testing.T) {
	st := &fakeStore{}
	sched := &fakeScheduler{}
	sess := &tools.Session{ServerID: "srv-1", Store: st}
	tool := NewBackupCreateTool(sched)

	params, _ := json.Marshal(map[string]any{
		"name":             "ad-hoc",
		"repository_type": "local",
		"repository_path":  "/srv/backups/repo",
	})

	result, err := tool.Execute(context.Background(), sess, params)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, st.created, 1)
	assert.Empty(t, sched.registered)
}
