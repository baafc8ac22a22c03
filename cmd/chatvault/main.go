package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/agent"
	"github.com/chatvault/chatvault/internal/audit"
	"github.com/chatvault/chatvault/internal/cache"
	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/github"
	"github.com/chatvault/chatvault/internal/llm"
	"github.com/chatvault/chatvault/internal/logger"
	"github.com/chatvault/chatvault/internal/privacy"
	"github.com/chatvault/chatvault/internal/recognizer"
	"github.com/chatvault/chatvault/internal/server"
	"github.com/chatvault/chatvault/internal/session"
	"github.com/chatvault/chatvault/internal/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("ChatVault %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting ChatVault",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Token vault: Redis when configured, in-process memory otherwise.
	var vault privacy.TokenVault
	var redisVault *cache.RedisVault
	if cfg.Redis.Enabled {
		redisVault, err = cache.NewRedisVault(&cache.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			log.Fatal("Failed to connect to Redis vault", zap.Error(err))
		}
		defer redisVault.Close()
		vault = redisVault
	} else {
		vault = privacy.NewMemoryVault()
	}

	// Redaction engine. The statistical engine keeps the pattern engine
	// as its fallback, sharing one vault.
	pattern := privacy.NewRedactor(nil, cfg.Privacy.KnownValues, vault, log.WithComponent("privacy"))
	var engine privacy.Engine = pattern
	if cfg.Privacy.Engine == "statistical" {
		scanner, err := recognizer.NewScanner(recognizer.Config{
			ModelPath: cfg.Privacy.Model.Path,
			MaxLength: cfg.Privacy.Model.MaxLength,
			Threshold: cfg.Privacy.Model.Threshold,
		}, log.WithComponent("recognizer"))
		if err != nil {
			log.Warn("Statistical engine unavailable, using pattern engine", zap.Error(err))
		} else {
			statistical := privacy.NewStatisticalRedactor(scanner, pattern, log.WithComponent("privacy"))
			defer statistical.Close()
			engine = statistical
		}
	}

	// Durable conversation storage.
	var store session.Store
	if cfg.Storage.Enabled {
		objectStore, err := storage.NewObjectStore(ctx, storage.Config{
			Bucket:   cfg.Storage.Bucket,
			Region:   cfg.Storage.Region,
			Endpoint: cfg.Storage.Endpoint,
			Prefix:   cfg.Storage.Prefix,
		}, log.WithComponent("storage").Logger)
		if err != nil {
			log.Fatal("Failed to initialize object store", zap.Error(err))
		}
		store = objectStore
	}

	sessions := session.NewManager(store, cfg.Sessions.TTL, log.WithComponent("session"))
	go sweepSessions(ctx, sessions, cfg.Sessions.TTL)

	// Upstream model client.
	completer, err := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, log.WithComponent("llm").Logger)
	if err != nil {
		log.Fatal("Failed to create LLM client", zap.Error(err))
	}

	var repos agent.RepoTool
	if cfg.GitHub.Enabled {
		repos = github.NewClient(github.Config{
			BaseURL:  cfg.GitHub.BaseURL,
			Token:    cfg.GitHub.Token,
			Username: cfg.GitHub.Username,
			Timeout:  cfg.GitHub.Timeout,
		}, log.WithComponent("github").Logger)
	}

	ag, err := agent.New(agent.Config{
		HistoryWindow: cfg.Sessions.HistoryWindow,
		SystemPrompt:  cfg.LLM.SystemPrompt,
	}, engine, sessions, completer, repos, log.WithComponent("agent"))
	if err != nil {
		log.Fatal("Failed to create agent", zap.Error(err))
	}

	var trail *audit.Trail
	if cfg.Audit.Enabled {
		trail, err = audit.NewTrail(audit.Config{
			Enabled: cfg.Audit.Enabled,
			DSN:     cfg.Audit.DSN,
		}, log.WithComponent("audit"))
		if err != nil {
			log.Fatal("Failed to initialize audit trail", zap.Error(err))
		}
		defer trail.Close()
		ag.SetAuditTrail(trail)
	}

	srv, err := server.New(cfg, log, engine, sessions, ag)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}
	srv.SetAuditTrail(trail)

	// Reload notice only. Engine and storage selection need a restart.
	if err := config.Watch(cfg, func(updated *config.Config) {
		log.Info("Configuration file changed; restart to apply",
			zap.String("engine", updated.Privacy.Engine),
		)
	}); err != nil {
		log.Warn("Config watch unavailable", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// sweepSessions periodically evicts idle sessions from the cache.
func sweepSessions(ctx context.Context, sessions *session.Manager, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval > 10*time.Minute {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Sweep(ctx)
		}
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
