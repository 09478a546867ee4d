package tryon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tryon-gateway/internal/imagecodec"
	"github.com/upb/tryon-gateway/internal/observability"
	"github.com/upb/tryon-gateway/services/providers"
	"go.uber.org/zap"
)

// Service dispatches a try-on request to the selected vendor adapter. It
// checks preconditions, normalises the input images and records the outcome.
type Service struct {
	registry   *providers.Registry
	normalizer *imagecodec.Normalizer
	metrics    observability.Metrics
	logger     *zap.Logger
}

// NewService creates a new try-on service
func NewService(
	registry *providers.Registry,
	normalizer *imagecodec.Normalizer,
	metrics observability.Metrics,
	logger *zap.Logger,
) *Service {
	if normalizer == nil {
		normalizer = imagecodec.NewNormalizer(imagecodec.DefaultMaxSide)
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:   registry,
		normalizer: normalizer,
		metrics:    metrics,
		logger:     logger,
	}
}

// Generate runs one try-on and returns its result. Failures are values; the
// caller's request is never mutated.
func (s *Service) Generate(ctx context.Context, req *providers.TryOnRequest) providers.TryOnResult {
	invocationID := uuid.New().String()
	start := time.Now()

	if req == nil {
		return s.finish(invocationID, start, providers.Failed("", providers.StageValidation, "request is required"))
	}

	logger := s.logger.With(
		zap.String("invocation_id", invocationID),
		zap.String("vendor", string(req.Vendor)))

	if !req.Vendor.Valid() {
		return s.finish(invocationID, start, providers.Failed(req.Vendor, providers.StageValidation,
			fmt.Sprintf("unknown vendor %q", req.Vendor)))
	}

	adapter, err := s.registry.GetProvider(req.Vendor)
	if err != nil {
		return s.finish(invocationID, start, providers.Failed(req.Vendor, providers.StageValidation, err.Error()))
	}

	if !adapter.HasCredential() {
		return s.finish(invocationID, start, providers.Failed(req.Vendor, providers.StageValidation,
			providers.MissingCredential(adapter.Name()).Error()))
	}

	if err := checkInputs(req); err != nil {
		return s.finish(invocationID, start, providers.Failed(req.Vendor, providers.StageValidation, err.Error()))
	}

	normalized := s.normalize(req)
	logger.Debug("dispatching try-on",
		zap.String("variant", string(req.Vendor.Variant())),
		zap.Int("person_width", normalized.PersonImage.Bounds().Dx()),
		zap.Int("person_height", normalized.PersonImage.Bounds().Dy()))

	result := providers.Run(ctx, adapter, normalized)
	return s.finish(invocationID, start, result)
}

// checkInputs verifies the images a vendor needs are present
func checkInputs(req *providers.TryOnRequest) error {
	if req.PersonImage == nil {
		return fmt.Errorf("person image is required")
	}
	if req.GarmentImage == nil {
		return fmt.Errorf("garment image is required")
	}
	if req.Vendor == providers.VendorFitroom &&
		req.Options.String("cloth_type", "") == "combo" &&
		req.LowerGarmentImage == nil {
		return fmt.Errorf("cloth_type combo requires a lower garment image")
	}
	return nil
}

// normalize returns a copy of req with every image resized and flattened
func (s *Service) normalize(req *providers.TryOnRequest) *providers.TryOnRequest {
	out := providers.NewTryOnRequest(
		req.Vendor,
		s.normalizer.Normalize(req.PersonImage),
		s.normalizer.Normalize(req.GarmentImage),
		req.Options,
	)
	out.LowerGarmentImage = s.normalizer.Normalize(req.LowerGarmentImage)
	return out
}

func (s *Service) finish(invocationID string, start time.Time, result providers.TryOnResult) providers.TryOnResult {
	elapsed := time.Since(start)
	s.metrics.RecordOutcome(observability.OutcomeLabels{
		Vendor: string(result.Vendor),
		Stage:  string(result.Stage),
	}, elapsed)

	fields := []zap.Field{
		zap.String("invocation_id", invocationID),
		zap.String("vendor", string(result.Vendor)),
		zap.Duration("elapsed", elapsed),
	}
	if result.JobID != "" {
		fields = append(fields, zap.String("job_id", result.JobID))
	}
	if len(result.Advisories) > 0 {
		fields = append(fields, zap.Strings("advisories", result.Advisories))
	}

	if result.IsSuccess() {
		s.logger.Info("try-on completed", fields...)
	} else {
		fields = append(fields, zap.String("stage", string(result.Stage)), zap.String("reason", result.Reason))
		s.logger.Warn("try-on failed", fields...)
	}
	return result
}

// HasCredential reports whether vendor is registered with an API key
func (s *Service) HasCredential(vendor providers.Vendor) bool {
	adapter, err := s.registry.GetProvider(vendor)
	if err != nil {
		return false
	}
	return adapter.HasCredential()
}

// Vendors lists every supported vendor with its configuration state
func (s *Service) Vendors() []VendorStatus {
	vendors := providers.AllVendors()
	statuses := make([]VendorStatus, 0, len(vendors))
	for _, v := range vendors {
		status := VendorStatus{
			Vendor:  v,
			Name:    v.DisplayName(),
			Variant: v.Variant(),
		}
		if adapter, err := s.registry.GetProvider(v); err == nil {
			status.Registered = true
			status.Configured = adapter.HasCredential()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Ready reports whether at least one vendor can be called
func (s *Service) Ready() bool {
	return len(s.registry.Configured()) > 0
}

// Metrics returns the outcome counters
func (s *Service) Metrics() []observability.OutcomeStat {
	return s.metrics.Snapshot()
}
