package handlers

import (
	"context"
	"errors"
	"image"
	"net/http"
	"strings"

	"github.com/upb/tryon-gateway/internal/imagecodec"
	"github.com/upb/tryon-gateway/internal/observability"
	"github.com/upb/tryon-gateway/middleware"
	"github.com/upb/tryon-gateway/services"
	"github.com/upb/tryon-gateway/services/providers"
	"github.com/upb/tryon-gateway/services/tryon"
	"github.com/upb/tryon-gateway/utils"
	"go.uber.org/zap"
)

// multipartMemory is how much of a form is kept in memory before spilling to disk
const multipartMemory = 32 << 20

// Response headers of a successful try-on
const (
	HeaderVendor     = "X-Tryon-Vendor"
	HeaderJobID      = "X-Tryon-Job-Id"
	HeaderAdvisories = "X-Tryon-Advisories"
)

// VendorDirectory answers vendor configuration queries
type VendorDirectory interface {
	Vendors() []tryon.VendorStatus
	Ready() bool
}

// TryOnService defines the interface for the try-on orchestrator
type TryOnService interface {
	VendorDirectory
	Generate(ctx context.Context, req *providers.TryOnRequest) providers.TryOnResult
	Metrics() []observability.OutcomeStat
}

// TryOnForm holds the non-file fields of a try-on upload
type TryOnForm struct {
	Vendor string `form:"vendor" validate:"required,vendor"`
}

// reservedFields never become vendor options
var reservedFields = map[string]bool{"vendor": true}

// TryOnHandler handles try-on HTTP requests
type TryOnHandler struct {
	service        TryOnService
	maxUploadBytes int64
	jpegQuality    int
	logger         *zap.Logger
}

// NewTryOnHandler creates a new try-on handler
func NewTryOnHandler(service TryOnService, maxUploadBytes int64, jpegQuality int, logger *zap.Logger) *TryOnHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 << 20
	}
	if jpegQuality <= 0 {
		jpegQuality = imagecodec.DefaultJPEGQuality
	}
	return &TryOnHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		jpegQuality:    jpegQuality,
		logger:         logger,
	}
}

// HandleTryOn handles POST /api/v1/tryon
func (h *TryOnHandler) HandleTryOn(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromContext(r.Context(), h.logger)

	if r.ContentLength > h.maxUploadBytes {
		h.writeTooLarge(w, logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeTooLarge(w, logger)
			return
		}
		HandleValidationError(w, errors.New("request must be multipart/form-data"), logger)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	form := TryOnForm{Vendor: r.FormValue("vendor")}
	if err := utils.ValidateStruct(&form); err != nil {
		HandleValidationError(w, err, logger)
		return
	}
	vendor, _ := providers.ParseVendor(form.Vendor)

	person, err := readImage(r, "person_image", true)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}
	garment, err := readImage(r, "garment_image", true)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}
	lower, err := readImage(r, "lower_garment_image", false)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	req := providers.NewTryOnRequest(vendor, person, garment, formOptions(r))
	req.LowerGarmentImage = lower

	logger.Info("try-on requested",
		zap.String("vendor", string(vendor)),
		zap.Int("options", len(req.Options)))

	result := h.service.Generate(r.Context(), req)
	if !result.IsSuccess() {
		WriteTryOnFailure(w, result, logger)
		return
	}

	data, err := imagecodec.EncodeJPEG(result.Image, h.jpegQuality)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to encode result image", err), logger)
		return
	}

	if err := utils.WriteImage(w, "image/jpeg", data, map[string]string{
		HeaderVendor:     string(result.Vendor),
		HeaderJobID:      result.JobID,
		HeaderAdvisories: strings.Join(result.Advisories, "; "),
	}); err != nil {
		logger.Error("failed to write image response", zap.Error(err))
	}
}

// HandleVendors handles GET /api/v1/vendors
func (h *TryOnHandler) HandleVendors(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.service.Vendors()); err != nil {
		h.logger.Error("failed to write vendors response", zap.Error(err))
	}
}

// HandleMetrics handles GET /api/v1/metrics
func (h *TryOnHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.service.Metrics()); err != nil {
		h.logger.Error("failed to write metrics response", zap.Error(err))
	}
}

func (h *TryOnHandler) writeTooLarge(w http.ResponseWriter, logger *zap.Logger) {
	if err := utils.WriteError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit", map[string]interface{}{
		"max_bytes": h.maxUploadBytes,
	}); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// readImage decodes one uploaded file. A missing optional file yields nil.
func readImage(r *http.Request, field string, required bool) (image.Image, error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		if required {
			return nil, services.ErrImageRequired.Wrap(field+" is required", nil).
				WithDetail("field", field)
		}
		return nil, nil
	}
	if err != nil {
		return nil, services.ErrInvalidInput.Wrap("failed to read "+field, err).
			WithDetail("field", field)
	}
	defer file.Close()

	img, err := imagecodec.Decode(file)
	if err != nil {
		return nil, services.ErrUndecodableImage.Wrap(field+" is not a decodable image", err).
			WithDetail("field", field)
	}
	return img, nil
}

// formOptions turns every non-reserved text field into a vendor option
func formOptions(r *http.Request) providers.Options {
	opts := providers.Options{}
	for key, values := range r.MultipartForm.Value {
		if reservedFields[key] || len(values) == 0 {
			continue
		}
		opts[key] = values[0]
	}
	return opts
}
