package segmind

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"time"

	"github.com/upb/tryon-gateway/internal/imagecodec"
	"github.com/upb/tryon-gateway/services/providers"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.segmind.com/v1"
	tryOnPath      = "/try-on-diffusion"

	defaultCategory       = "Upper body"
	defaultInferenceSteps = 35
	defaultGuidanceScale  = 2.0
	defaultSeed           = 12467
)

// Categories accepted by the try-on diffusion model
var Categories = []string{"Upper body", "Lower body", "Dress"}

// SegmindAdapter implements the Provider interface for Segmind Try-On Diffusion.
// One JSON POST carries both images inline; the response is either JSON with a
// base64 image or the raw image bytes.
type SegmindAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSegmindAdapter creates a new Segmind adapter
func NewSegmindAdapter(config providers.ProviderConfig, logger *zap.Logger) *SegmindAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.JPEGQuality == 0 {
		config.JPEGQuality = imagecodec.DefaultJPEGQuality
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SegmindAdapter{
		config:     config,
		httpClient: config.NewHTTPClient(),
		logger:     logger.Named("segmind"),
	}
}

// Vendor returns the vendor identifier
func (a *SegmindAdapter) Vendor() providers.Vendor {
	return providers.VendorSegmind
}

// Name returns the provider name
func (a *SegmindAdapter) Name() string {
	return string(providers.VendorSegmind)
}

// HasCredential reports whether an API key is configured
func (a *SegmindAdapter) HasCredential() bool {
	return a.config.APIKey != ""
}

// Generate performs a try-on request
func (a *SegmindAdapter) Generate(ctx context.Context, req *providers.TryOnRequest) (*providers.Generation, error) {
	if !a.HasCredential() {
		return nil, providers.MissingCredential(a.Name())
	}
	if req.PersonImage == nil || req.GarmentImage == nil {
		return nil, providers.InvalidInput(a.Name(), "person and garment images are required")
	}

	category, err := req.Options.OneOf("category", defaultCategory, Categories...)
	if err != nil {
		return nil, providers.InvalidInput(a.Name(), err.Error())
	}

	body, err := a.buildRequest(req, category)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.KindSubmitFailed, "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+tryOnPath, bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.KindSubmitFailed, "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	a.config.ApplyHeaders(httpReq)

	start := time.Now()
	resp, err := providers.Do(a.httpClient, httpReq)
	if err != nil {
		return nil, providers.SubmitTransportError(a.Name(), err)
	}
	if !resp.IsSuccess() {
		return nil, providers.SubmitHTTPError(a.Name(), resp.StatusCode, resp.Body)
	}

	img, err := a.decodeResponse(resp)
	if err != nil {
		return nil, err
	}

	a.logger.Info("try-on generated",
		zap.String("category", category),
		zap.Duration("latency", time.Since(start)),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	return &providers.Generation{Image: img}, nil
}

func (a *SegmindAdapter) buildRequest(req *providers.TryOnRequest, category string) (*TryOnDiffusionRequest, error) {
	model, err := imagecodec.EncodeBase64(req.PersonImage, a.config.JPEGQuality)
	if err != nil {
		return nil, providers.InvalidInput(a.Name(), "failed to encode person image: "+err.Error())
	}
	cloth, err := imagecodec.EncodeBase64(req.GarmentImage, a.config.JPEGQuality)
	if err != nil {
		return nil, providers.InvalidInput(a.Name(), "failed to encode garment image: "+err.Error())
	}

	return &TryOnDiffusionRequest{
		ModelImage:        model,
		ClothImage:        cloth,
		Category:          category,
		NumInferenceSteps: req.Options.Int("num_inference_steps", defaultInferenceSteps),
		GuidanceScale:     req.Options.Float("guidance_scale", defaultGuidanceScale),
		Seed:              req.Options.Int("seed", defaultSeed),
		Base64:            true,
	}, nil
}

// decodeResponse handles both the JSON envelope and raw image bodies
func (a *SegmindAdapter) decodeResponse(resp *providers.Response) (image.Image, error) {
	if resp.ContentType() != "application/json" {
		return providers.DecodeResult(a.Name(), resp.Body)
	}

	var out TryOnDiffusionResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.KindDownloadFailed, "failed to unmarshal response", resp.StatusCode, err)
	}
	if out.Image == "" {
		return nil, providers.NewProviderError(a.Name(), providers.KindDownloadFailed, "response does not contain image data", resp.StatusCode, nil)
	}

	img, err := imagecodec.DecodeBase64(out.Image)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.KindDownloadFailed, "result is not a decodable image", resp.StatusCode, err)
	}
	return img, nil
}

// Segmind-specific request/response types

type TryOnDiffusionRequest struct {
	ModelImage        string  `json:"model_image"`
	ClothImage        string  `json:"cloth_image"`
	Category          string  `json:"category"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Seed              int     `json:"seed"`
	Base64            bool    `json:"base64"`
}

type TryOnDiffusionResponse struct {
	Image string `json:"image"`
}
