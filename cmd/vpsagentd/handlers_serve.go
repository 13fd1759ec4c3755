package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/riftlabs/vpsagent/internal/agent"
	"github.com/riftlabs/vpsagent/internal/auth"
	"github.com/riftlabs/vpsagent/internal/config"
	"github.com/riftlabs/vpsagent/internal/gatewayhttp"
	"github.com/riftlabs/vpsagent/internal/llm"
	"github.com/riftlabs/vpsagent/internal/observability"
	"github.com/riftlabs/vpsagent/internal/orchestrator"
	"github.com/riftlabs/vpsagent/internal/research"
	"github.com/riftlabs/vpsagent/internal/store"
	"github.com/riftlabs/vpsagent/internal/terminal"
	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/internal/tools/backup"
	"github.com/riftlabs/vpsagent/internal/vault"

	_ "github.com/lib/pq"
)

// listenError wraps a gateway bind/listen failure so main's exitCodeFor can
// distinguish it from a config error per spec §9's exit code contract.
type listenError struct{ err error }

func (e *listenError) Error() string { return e.err.Error() }
func (e *listenError) Unwrap() error { return e.err }

func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("configuration loaded", "http_port", cfg.Server.HTTPPort, "llm_provider", cfg.LLM.DefaultProvider)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	if err := store.Migrate(migrateCtx, db); err != nil {
		cancel()
		return fmt.Errorf("apply migrations: %w", err)
	}
	cancel()

	pgStore, err := store.NewPostgresFromDSN(cfg.Database.URL, &store.PostgresConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer pgStore.Close()

	credentialVault, err := vault.New(cfg.Secrets.SessionSecret)
	if err != nil {
		return fmt.Errorf("init credential vault: %w", err)
	}
	apiKeyVault, err := vault.NewAPIKeyVault(cfg.Secrets.APIKeyEncryptionSecret)
	if err != nil {
		return fmt.Errorf("init api key vault: %w", err)
	}
	var backupVault *vault.APIKeyVault
	if cfg.Secrets.EncryptionKey != "" {
		backupVault, err = vault.NewBackupVault(cfg.Secrets.EncryptionKey)
		if err != nil {
			return fmt.Errorf("init backup vault: %w", err)
		}
	} else {
		slog.Warn("ENCRYPTION_KEY not set, backup_get_password tool disabled")
	}

	provider, err := llm.NewAnthropicProvider(llm.AnthropicConfig{
		APIKey:       cfg.Secrets.AnthropicAPIKey,
		DefaultModel: cfg.LLM.DefaultModel,
		MaxRetries:   cfg.LLM.MaxRetries,
		RetryDelay:   cfg.LLM.RetryDelay,
	})
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	researchGateway := research.New(research.Config{
		APIKey: cfg.Secrets.PerplexityAPIKey,
		Model:  cfg.Research.Model,
	}, pgStore)

	tracer, shutdownTracer := observability.NewTracer("vpsagentd")
	defer func() { _ = shutdownTracer(context.Background()) }()

	resolver := gatewayhttp.NewServerResolver(pgStore, credentialVault)

	scheduler := backup.NewScheduler(nilableDecryptor(backupVault))

	catalog := agent.NewCatalog(scheduler)
	approvals := agent.NewApprovalStore()
	dispatcher := agent.NewDispatcher(catalog, approvals, pgStore)

	scheduler.SetDispatch(func(ctx context.Context, serverID, toolName string, params map[string]any) error {
		srv, err := pgStore.GetServer(ctx, serverID)
		if err != nil {
			return fmt.Errorf("scheduled dispatch: resolve server: %w", err)
		}
		conn, err := resolver.Resolve(ctx, srv.UserID, serverID)
		if err != nil {
			return fmt.Errorf("scheduled dispatch: resolve connection: %w", err)
		}
		payload, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("scheduled dispatch: marshal params: %w", err)
		}
		sess := &tools.Session{
			ServerID:    serverID,
			Conn:        conn,
			UserID:      srv.UserID,
			Store:       pgStore,
			BackupVault: nilableDecryptor(backupVault),
			APIKeyVault: apiKeyVault,
		}
		_, err = dispatcher.Dispatch(ctx, toolName, payload, sess)
		return err
	})

	scheduleCtx, cancelSchedule := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	existing, err := pgStore.ListScheduledBackupConfigs(scheduleCtx)
	cancelSchedule()
	if err != nil {
		return fmt.Errorf("load scheduled backups: %w", err)
	}
	for _, bc := range existing {
		if err := scheduler.Register(bc); err != nil {
			slog.Warn("skipping scheduled backup", "config_id", bc.ID, "error", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	bus := orchestrator.NewEventBus()
	taskOrchestrator := orchestrator.New(provider, nil, bus)
	taskOrchestrator.SetTracer(tracer)

	aiAssistant := terminal.NewAIAssistant(provider, cfg.LLM.DefaultModel)
	relay := terminal.New(resolver, nil, aiAssistant, slog.Default())

	jwtService := auth.NewJWTService(cfg.Secrets.SessionSecret, cfg.Auth.TokenExpiry)

	server := gatewayhttp.New(gatewayhttp.Deps{
		Store:        pgStore,
		Resolver:     resolver,
		Provider:     provider,
		Catalog:      catalog,
		Dispatcher:   dispatcher,
		Approvals:    approvals,
		Research:     researchGateway,
		Orchestrator: taskOrchestrator,
		Relay:        relay,
		Auth:         jwtService,
		BackupVault:  nilableDecryptor(backupVault),
		APIKeyVault:  apiKeyVault,
		Tracer:       tracer,
		Logger:       slog.Default(),
	})

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	if err := server.ListenAndServe(shutdownCtx, addr); err != nil {
		return &listenError{err: fmt.Errorf("gateway: %w", err)}
	}

	slog.Info("vpsagentd stopped")
	return nil
}

// nilableDecryptor narrows a possibly-nil *vault.APIKeyVault to
// tools.CredentialDecryptor explicitly: assigning a nil *vault.APIKeyVault
// straight into an interface field produces a non-nil interface wrapping a
// nil pointer, which would defeat BackupGetPasswordTool's own `== nil` check.
func nilableDecryptor(v *vault.APIKeyVault) tools.CredentialDecryptor {
	if v == nil {
		return nil
	}
	return v
}
