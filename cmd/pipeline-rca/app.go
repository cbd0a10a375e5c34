package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/miradorstack/pipeline-rca/internal/cache"
	"github.com/miradorstack/pipeline-rca/internal/config"
	"github.com/miradorstack/pipeline-rca/internal/engine"
	"github.com/miradorstack/pipeline-rca/internal/format"
	"github.com/miradorstack/pipeline-rca/internal/knowledge"
	"github.com/miradorstack/pipeline-rca/internal/notifications"
	"github.com/miradorstack/pipeline-rca/internal/repo"
	"github.com/miradorstack/pipeline-rca/internal/services"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	cache   cache.Provider
	jenkins *repo.JenkinsClient
	target  repo.Target
	svc     *services.PipelineService
}

func newApp(logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := utils.NewLoggerTo(logOut, cfg.Logging.Level, cfg.Logging.JSON)

	provider := newCacheProvider(cfg.Cache, logger)

	rules, err := engine.LoadRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		provider.Close()
		return nil, err
	}
	catalog, err := knowledge.LoadCatalog(cfg.KnowledgeBase.Path, logger)
	if err != nil {
		provider.Close()
		return nil, err
	}

	classifier := engine.NewClassifier(logger, nil)
	store := notifications.NewStore(logger, rules, cfg.Notifications.Retention)
	jenkins := repo.NewJenkinsClient(cfg.Jenkins.Timeout, provider, cfg.Cache.JobsTTL, logger)
	target := repo.Target{BaseURL: cfg.Jenkins.BaseURL, Username: cfg.Jenkins.Username, APIToken: cfg.Jenkins.APIToken}

	svc := services.NewPipelineService(logger, classifier, store, catalog, jenkins, provider, services.Options{
		HistorySize: cfg.Notifications.HistorySize,
		StatsTTL:    cfg.Cache.StatsTTL,
		Target:      target,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		cache:   provider,
		jenkins: jenkins,
		target:  target,
		svc:     svc,
	}, nil
}

func newCacheProvider(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if !cfg.Enabled {
		return cache.NoopProvider{}
	}
	if cfg.Backend == config.CacheBackendMemory {
		return cache.NewMemoryProvider()
	}
	provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
	})
	if err != nil {
		logger.Warn("valkey cache unavailable", slog.Any("error", err))
		return cache.NoopProvider{}
	}
	return provider
}

func (a *app) monitor(notifyOnStart bool) *engine.Monitor {
	return engine.NewMonitor(a.logger, a.jenkins, a.target, a.svc.Notifications(), a.svc.Classifier(), a.svc, engine.MonitorOptions{
		Jobs:            a.cfg.Jenkins.Jobs,
		PollInterval:    a.cfg.Jenkins.PollInterval,
		CleanupInterval: a.cfg.Notifications.CleanupInterval,
		MaxConcurrent:   a.cfg.Jenkins.MaxConcurrent,
		LogTailLines:    a.cfg.Jenkins.LogTailLines,
		HistoryBuilds:   a.cfg.Jenkins.HistoryBuilds,
		SlowBuildScore:  a.cfg.Jenkins.SlowBuildScore,
		NotifyOnStart:   notifyOnStart,
	})
}

func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("cache close failed", slog.Any("error", err))
	}
}

// emit writes v as JSON when -o json is selected, otherwise the rendered table.
func emit(w io.Writer, v any, table func(format.Mode) string) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, table(format.ParseMode(outputFormat)))
	return err
}

func stdoutOrFile(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
