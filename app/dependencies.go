package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/upb/sme-plug/config"
	"github.com/upb/sme-plug/internal/observability"
	"github.com/upb/sme-plug/internal/rag"
	"github.com/upb/sme-plug/repositories"
	"github.com/upb/sme-plug/repositories/postgres"
	"github.com/upb/sme-plug/services/audit"
	"github.com/upb/sme-plug/services/generation"
	"github.com/upb/sme-plug/services/guard"
	"github.com/upb/sme-plug/services/persona"
	"github.com/upb/sme-plug/services/pipeline"
	"github.com/upb/sme-plug/services/providers"
	"github.com/upb/sme-plug/services/providers/openai"
	"github.com/upb/sme-plug/services/retrieval"
)

// persisterStopTimeout bounds how long Close waits for queued audit writes
const persisterStopTimeout = 10 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config          *config.Config
	Logger          *zap.Logger
	MetricsRegistry *prometheus.Registry
	Metrics         *observability.Metrics

	// Optional audit persistence
	RepoFactory  *postgres.RepositoryFactory
	AuditEntries repositories.AuditRepository

	// Domain services
	Personas    *persona.Registry
	Embedder    rag.Embedder
	Retriever   *retrieval.Service
	Providers   *providers.Registry
	Generator   *generation.Service
	InputGuard  *guard.InputGuard
	OutputGuard *guard.OutputGuard
	AuditLog    *audit.Log
	Pipeline    *pipeline.Pipeline

	persister   *audit.Persister
	watcher     *persona.CorpusWatcher
	stopWatcher context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initMetrics(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initPersonas(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize personas: %w", err)
	}

	if err := deps.initRetrieval(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize retrieval: %w", err)
	}

	if err := deps.initGeneration(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize generation: %w", err)
	}

	if err := deps.initAudit(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize audit: %w", err)
	}

	deps.InputGuard = guard.NewInputGuard(logger, deps.Metrics)
	deps.OutputGuard = guard.NewOutputGuard(logger, deps.Metrics)
	deps.Pipeline = pipeline.New(
		deps.Personas,
		deps.InputGuard,
		deps.OutputGuard,
		deps.Retriever,
		deps.Generator,
		deps.AuditLog,
		pipeline.Options{TopK: cfg.Retrieval.TopK},
		logger,
		deps.Metrics,
	)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initMetrics creates the Prometheus registry. The collectors are created
// either way so handlers never branch on metrics being enabled.
func (d *Dependencies) initMetrics(cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return err
	}
	d.MetricsRegistry = reg
	d.Metrics = metrics
	return nil
}

// initDatabase connects to PostgreSQL when audit persistence is configured
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Enabled() {
		d.Logger.Info("audit persistence disabled, entries are kept in memory only")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	if err := factory.GetDB().InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	d.RepoFactory = factory
	d.AuditEntries = factory.NewRepositories().AuditEntries
	return nil
}

func (d *Dependencies) initPersonas(cfg *config.Config) error {
	personas, err := NewPersonaRegistry(cfg, d.Logger, d.Metrics)
	if err != nil {
		return err
	}
	d.Personas = personas
	return nil
}

// NewPersonaRegistry loads the persona registry from the configured namespaces
// file, seeding the defaults on first start.
func NewPersonaRegistry(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*persona.Registry, error) {
	store := persona.NewFileStore(cfg.Personas.NamespacesFile)
	registry := persona.NewRegistry(store, cfg.Retrieval.CorporaDir, logger, metrics)
	if err := registry.Load(); err != nil {
		return nil, err
	}
	return registry, nil
}

// NewReadOnlyPersonaRegistry loads the registry without writing the
// namespaces file; a missing file yields the default personas.
func NewReadOnlyPersonaRegistry(cfg *config.Config, logger *zap.Logger) (*persona.Registry, error) {
	registry := persona.NewRegistry(persona.NewFileStore(cfg.Personas.NamespacesFile), cfg.Retrieval.CorporaDir, logger, nil)
	if err := registry.LoadReadOnly(); err != nil {
		return nil, err
	}
	return registry, nil
}

func (d *Dependencies) initRetrieval(cfg *config.Config) error {
	switch cfg.Retrieval.Embedder {
	case "openai":
		d.Embedder = openai.NewEmbedder(d.endpointConfig(cfg, cfg.LLM.OpenAI), cfg.Retrieval.EmbeddingModel)
	default:
		d.Embedder = rag.NewHashEmbedder(cfg.Retrieval.EmbeddingDims)
	}

	d.Retriever = retrieval.NewService(d.Personas, d.Embedder, retrieval.Options{
		Chunk: rag.ChunkOptions{
			Size:     cfg.Retrieval.ChunkSize,
			Overlap:  cfg.Retrieval.ChunkOverlap,
			MinChars: cfg.Retrieval.MinChunkChars,
		},
		MinScore: cfg.Retrieval.MinScore,
	}, d.Logger, d.Metrics)

	d.Logger.Info("retrieval initialized",
		zap.String("embedder", cfg.Retrieval.Embedder),
		zap.String("corpora_dir", cfg.Retrieval.CorporaDir))

	if !cfg.Retrieval.WatchCorpus {
		return nil
	}

	watcher, err := persona.NewCorpusWatcher(d.Personas, d.Retriever, d.Logger)
	if err != nil {
		d.Logger.Warn("corpus watcher disabled", zap.Error(err))
		return nil
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	d.watcher = watcher
	d.stopWatcher = cancel
	go watcher.Run(watchCtx)
	return nil
}

// initGeneration registers an adapter per configured endpoint and selects the
// active provider
func (d *Dependencies) initGeneration(cfg *config.Config) error {
	registry := providers.NewRegistry()
	endpoints := map[string]config.ProviderEndpoint{
		openai.ProviderOpenAI: cfg.LLM.OpenAI,
		openai.ProviderGroq:   cfg.LLM.Groq,
		openai.ProviderGemini: cfg.LLM.Gemini,
	}
	for name, endpoint := range endpoints {
		if endpoint.APIKey == "" && name != cfg.LLM.Provider {
			continue
		}
		if err := registry.RegisterProvider(openai.NewAdapter(name, d.endpointConfig(cfg, endpoint), d.Logger)); err != nil {
			return err
		}
	}

	provider, err := registry.GetProvider(cfg.LLM.Provider)
	if err != nil {
		return fmt.Errorf("provider %q: %w", cfg.LLM.Provider, err)
	}
	if cfg.ActiveEndpoint().APIKey == "" {
		d.Logger.Warn("no API key for the active provider, generation requests will fail",
			zap.String("provider", cfg.LLM.Provider))
	}

	d.Providers = registry
	d.Generator = generation.NewService(provider, generation.Options{
		Model:              cfg.ActiveEndpoint().Model,
		Temperature:        cfg.LLM.Temperature,
		MaxTokens:          cfg.LLM.MaxTokens,
		VanillaTemperature: cfg.LLM.VanillaTemperature,
		VanillaMaxTokens:   cfg.LLM.VanillaMaxTokens,
	}, d.Logger, d.Metrics)

	d.Logger.Info("generation initialized",
		zap.String("provider", cfg.LLM.Provider),
		zap.Strings("registered", registry.ListProviders()))
	return nil
}

func (d *Dependencies) endpointConfig(cfg *config.Config, endpoint config.ProviderEndpoint) providers.ProviderConfig {
	return providers.ProviderConfig{
		APIKey:     endpoint.APIKey,
		BaseURL:    endpoint.BaseURL,
		Model:      endpoint.Model,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: cfg.LLM.RetryDelay,
	}
}

func (d *Dependencies) initAudit(cfg *config.Config) error {
	d.AuditLog = audit.NewLog(cfg.Audit.Capacity, d.Logger, d.Metrics)
	if d.AuditEntries == nil {
		return nil
	}

	persisterCfg := audit.DefaultConfig()
	persisterCfg.BufferSize = cfg.Audit.BufferSize
	persisterCfg.WorkerCount = cfg.Audit.WorkerCount

	persister := audit.NewPersister(d.AuditEntries, persisterCfg, d.Logger, d.Metrics)
	if err := persister.Start(); err != nil {
		return err
	}
	d.persister = persister
	d.AuditLog.SetSink(persister)
	return nil
}

// SQLDB returns the audit database pool, or nil when persistence is disabled
func (d *Dependencies) SQLDB() *sql.DB {
	if d.RepoFactory == nil {
		return nil
	}
	return d.RepoFactory.GetDB().DB
}

// Close gracefully shuts down all dependencies. It is safe to call more than once.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopWatcher != nil {
		d.stopWatcher()
		d.stopWatcher = nil
		if err := d.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close corpus watcher: %w", err))
		}
	}

	if d.persister != nil {
		timeout := persisterStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.persister.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain audit persister: %w", err))
		}
		d.persister = nil
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
