package app

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/tryon-gateway/config"
	"github.com/upb/tryon-gateway/handlers"
	"github.com/upb/tryon-gateway/internal/imagecodec"
	"github.com/upb/tryon-gateway/internal/observability"
	"github.com/upb/tryon-gateway/services/providers"
	"github.com/upb/tryon-gateway/services/providers/fashn"
	"github.com/upb/tryon-gateway/services/providers/fitroom"
	"github.com/upb/tryon-gateway/services/providers/pixelcut"
	"github.com/upb/tryon-gateway/services/providers/segmind"
	"github.com/upb/tryon-gateway/services/tryon"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.InMemoryMetrics

	// Provider Registry
	ProviderRegistry *providers.Registry

	// Services
	TryOnService *tryon.Service

	// Handlers
	TryOnHandler  *handlers.TryOnHandler
	HealthHandler *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewInMemoryMetrics(),
	}

	// Initialize provider registry
	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initServices(cfg)
	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Int("providers", deps.ProviderRegistry.Count()),
		zap.Int("configured", len(deps.ProviderRegistry.Configured())))
	return deps, nil
}

// initProviders registers every vendor adapter. Adapters without a credential
// stay registered so the status endpoint can report them.
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry := providers.NewRegistry()
	adapters := []providers.Provider{
		segmind.NewSegmindAdapter(vendorConfig(cfg, providers.VendorSegmind), d.Logger),
		pixelcut.NewPixelCutAdapter(vendorConfig(cfg, providers.VendorPixelCut), d.Logger),
		fashn.NewFASHNAdapter(
			pollingConfig(cfg, providers.VendorFASHN, cfg.Polling.FASHNInterval, cfg.Polling.FASHNMaxAttempts),
			d.Logger),
		fitroom.NewFitroomAdapter(
			pollingConfig(cfg, providers.VendorFitroom, cfg.Polling.FitroomInterval, cfg.Polling.FitroomMaxAttempts),
			d.Logger),
	}

	for _, adapter := range adapters {
		if err := registry.RegisterProvider(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered try-on provider",
			zap.String("vendor", string(adapter.Vendor())),
			zap.Bool("configured", adapter.HasCredential()))
	}

	if len(registry.Configured()) == 0 {
		d.Logger.Warn("no try-on vendor credentials configured")
	}

	d.ProviderRegistry = registry
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.TryOnService = tryon.NewService(
		d.ProviderRegistry,
		imagecodec.NewNormalizer(cfg.Images.MaxSide),
		d.Metrics,
		d.Logger.Named("tryon"),
	)
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	d.TryOnHandler = handlers.NewTryOnHandler(
		d.TryOnService,
		cfg.Images.UploadMaxBytes,
		cfg.Images.JPEGQuality,
		d.Logger,
	)
	d.HealthHandler = handlers.NewHealthHandler(d.TryOnService, cfg.Environment, d.Logger)
}

// vendorConfig maps the vendor's settings onto an adapter config. Adapters
// name their own loggers.
func vendorConfig(cfg *config.Config, vendor providers.Vendor) providers.ProviderConfig {
	v, _ := cfg.Providers.Vendor(string(vendor))
	return providers.ProviderConfig{
		APIKey:      cfg.Credential(string(vendor)),
		BaseURL:     v.BaseURL,
		Timeout:     v.Timeout,
		JPEGQuality: cfg.Images.JPEGQuality,
	}
}

func pollingConfig(cfg *config.Config, vendor providers.Vendor, interval time.Duration, maxAttempts int) providers.ProviderConfig {
	pc := vendorConfig(cfg, vendor)
	pc.PollInterval = interval
	pc.PollMaxAttempts = maxAttempts
	return pc
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	for _, stat := range d.Metrics.Snapshot() {
		d.Logger.Info("try-on outcome totals",
			zap.String("vendor", stat.Vendor),
			zap.String("outcome", stat.Outcome),
			zap.String("stage", stat.Stage),
			zap.Int64("count", stat.Count))
	}

	// Flush any buffered log entries
	_ = d.Logger.Sync()

	d.Logger.Info("all dependencies closed successfully")
	return nil
}
