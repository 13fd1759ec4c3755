package backup

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// DispatchFunc invokes restic_backup through the same Tool Dispatcher path
// a user-triggered call would use, so scheduled and interactive backups
// share approval/danger-classification semantics.
type DispatchFunc func(ctx context.Context, serverID, toolName string, params map[string]any) error

// Scheduler registers one cron entry per active BackupConfig that has a
// non-empty Schedule, invoking restic_backup when it fires. It decrypts
// each config's password itself at fire time via vault, since the cron job
// has no caller to route a separate backup_get_password call through.
type Scheduler struct {
	cron     *cron.Cron
	dispatch DispatchFunc
	vault    tools.CredentialDecryptor

	mu      sync.Mutex
	entries map[string]cron.EntryID // configID -> entry
}

// NewScheduler constructs a Scheduler over vault. Call SetDispatch before
// Start; it is separate from the constructor because the dispatch closure
// usually needs the Dispatcher, which in turn needs the Catalog, which
// needs the Scheduler itself (for backup_create's Register call) —
// splitting construction from dispatch wiring breaks that cycle.
func NewScheduler(vault tools.CredentialDecryptor) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		vault:   vault,
		entries: make(map[string]cron.EntryID),
	}
}

// SetDispatch attaches the dispatch callback. Must be called before Start.
func (s *Scheduler) SetDispatch(dispatch DispatchFunc) { s.dispatch = dispatch }

// Start begins running registered cron entries in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

// Register adds or replaces the cron entry for cfg. A config with an empty
// Schedule is a no-op (backups created without a schedule run only on
// explicit tool calls).
func (s *Scheduler) Register(cfg *models.BackupConfig) error {
	if cfg.Schedule == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[cfg.ID]; ok {
		s.cron.Remove(existing)
		delete(s.entries, cfg.ID)
	}

	id, err := s.cron.AddFunc(cfg.Schedule, func() {
		ctx := context.Background()
		if s.dispatch == nil {
			return
		}
		if cfg.EncryptedPassword == "" || s.vault == nil {
			return
		}
		password, err := s.vault.DecryptString(cfg.EncryptedPassword)
		if err != nil {
			// Scheduled failures surface through the orchestrator's task history
			// on the next status read; the cron job itself has no caller to
			// report to synchronously.
			return
		}
		params := map[string]any{"config_id": cfg.ID, "password": password, "unattended": cfg.Unattended}
		if err := s.dispatch(ctx, cfg.VPSServerID, "restic_backup", params); err != nil {
			_ = err
		}
	})
	if err != nil {
		return fmt.Errorf("backup: register schedule %q: %w", cfg.Schedule, err)
	}
	s.entries[cfg.ID] = id
	return nil
}

// Unregister removes cfg's cron entry, if any.
func (s *Scheduler) Unregister(configID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[configID]; ok {
		s.cron.Remove(id)
		delete(s.entries, configID)
	}
}
