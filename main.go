package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"secure-llm-assistant/chat"
	"secure-llm-assistant/db"
	"secure-llm-assistant/ingest"
	"secure-llm-assistant/llm"
	"secure-llm-assistant/monitor"
	"secure-llm-assistant/pii"
	"secure-llm-assistant/utils"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// app holds the wired application components.
type app struct {
	cfg         *utils.Config
	logger      *utils.Logger
	database    *db.DB
	backend     llm.Backend
	pipeline    *pii.Pipeline
	store       *chat.Store
	registry    *llm.Registry
	gate        *monitor.Gate
	coordinator *chat.Coordinator

	stopSampler context.CancelFunc
}

// newApp wires every component from the configuration.
func newApp(cfg *utils.Config, logger *utils.Logger) (*app, error) {
	database, err := db.New(cfg.Data.DBPath)
	if err != nil {
		return nil, utils.WrapError(err, "database")
	}

	backend, err := newBackend(cfg)
	if err != nil {
		database.Close()
		return nil, utils.WrapError(err, "backend")
	}

	scanner := pii.NewScanner()
	for category, expr := range cfg.Redaction.CustomPatterns {
		if err := scanner.Register(pii.Category(category), expr); err != nil {
			logger.Warn("Skipping custom pattern %s: %v", category, err)
		}
	}
	pipeline := pii.NewPipeline(scanner, logger)

	store, err := chat.NewStore(database)
	if err != nil {
		database.Close()
		return nil, utils.WrapError(err, "conversation store")
	}

	registry := llm.NewRegistry(backend, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := registry.Sync(ctx); err != nil {
		logger.Warn("Could not sync models from backend: %v", err)
	}
	cancel()
	restoreSelection(database, registry, cfg, logger)

	gate := monitor.NewGate(thresholdsFrom(cfg))
	interval := time.Duration(cfg.Monitor.SampleIntervalSecs) * time.Second
	sampler := monitor.NewSampler(gate, monitor.MemorySample, interval, logger)

	samplerCtx, stopSampler := context.WithCancel(context.Background())
	utils.SafeGo(logger, "resource sampler", func() {
		sampler.Run(samplerCtx)
	})

	processor := ingest.NewProcessor(backend)
	coordinator := chat.NewCoordinator(store, database, pipeline, backend, registry, gate, processor, logger)

	return &app{
		cfg:         cfg,
		logger:      logger,
		database:    database,
		backend:     backend,
		pipeline:    pipeline,
		store:       store,
		registry:    registry,
		gate:        gate,
		coordinator: coordinator,
		stopSampler: stopSampler,
	}, nil
}

// newBackend instantiates the configured inference backend.
func newBackend(cfg *utils.Config) (llm.Backend, error) {
	backendCfg := llm.Config{
		BackendName: cfg.Backend.Name,
		APIKey:      cfg.Backend.APIKey,
		BaseURL:     cfg.Backend.BaseURL,
		MaxTokens:   cfg.Backend.MaxTokens,
		Temperature: cfg.Backend.Temperature,
	}

	switch cfg.Backend.Name {
	case "openai":
		return llm.NewOpenAIBackend(backendCfg)
	case "ollama", "":
		return llm.NewOllamaBackend(backendCfg)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend.Name)
	}
}

// restoreSelection re-applies the persisted model selection, falling
// back to the configured default.
func restoreSelection(database *db.DB, registry *llm.Registry, cfg *utils.Config, logger *utils.Logger) {
	saved, err := database.GetSetting(db.SettingSelectedModel)
	if err != nil {
		logger.Warn("Could not read saved model selection: %v", err)
	}
	if saved != "" {
		if err := registry.Select(saved); err == nil {
			return
		}
		logger.Warn("Saved model %s is not ready, falling back to default", saved)
	}

	if cfg.Backend.DefaultModel != "" {
		registry.Register(cfg.Backend.DefaultModel)
		if err := registry.Select(cfg.Backend.DefaultModel); err != nil {
			logger.Warn("Default model %s is not ready yet: %v", cfg.Backend.DefaultModel, err)
		}
	}
}

// thresholdsFrom maps the monitor configuration onto gate thresholds,
// keeping the defaults for any unset value.
func thresholdsFrom(cfg *utils.Config) monitor.Thresholds {
	t := monitor.DefaultThresholds()
	if cfg.Monitor.CPUThreshold > 0 {
		t.CPU = cfg.Monitor.CPUThreshold
	}
	if cfg.Monitor.MemoryThreshold > 0 {
		t.Memory = cfg.Monitor.MemoryThreshold
	}
	if cfg.Monitor.GPUThreshold > 0 {
		t.GPU = cfg.Monitor.GPUThreshold
	}
	if cfg.Monitor.TemperatureThreshold > 0 {
		t.Temperature = cfg.Monitor.TemperatureThreshold
	}
	return t
}

// Close releases the application resources.
func (a *app) Close() {
	if a.stopSampler != nil {
		a.stopSampler()
	}
	if a.database != nil {
		a.database.Close()
	}
}

func main() {
	configPath, err := utils.EnsureDefaultConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to prepare config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := utils.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logPath := cfg.LogPath
	if logPath == "" {
		logPath = utils.GetLogPath()
	}
	logger, err := utils.NewLogger(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	application, err := newApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	cliApp := newCLIApp(application)
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
