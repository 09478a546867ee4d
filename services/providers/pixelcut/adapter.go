package pixelcut

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/upb/tryon-gateway/internal/imagecodec"
	"github.com/upb/tryon-gateway/services/providers"
	"go.uber.org/zap"
)

const (
	defaultBaseURL     = "https://api.developer.pixelcut.ai/v1"
	tryOnPath          = "/try-on"
	defaultGarmentMode = "auto"
)

// GarmentModes accepted by the try-on endpoint
var GarmentModes = []string{"auto", "full", "upper", "lower"}

// PixelCutAdapter implements the Provider interface for the PixelCut try-on API.
// Images are uploaded as multipart parts and the result is fetched from the
// returned URL.
type PixelCutAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewPixelCutAdapter creates a new PixelCut adapter
func NewPixelCutAdapter(config providers.ProviderConfig, logger *zap.Logger) *PixelCutAdapter {
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

	return &PixelCutAdapter{
		config:     config,
		httpClient: config.NewHTTPClient(),
		logger:     logger.Named("pixelcut"),
	}
}

// Vendor returns the vendor identifier
func (a *PixelCutAdapter) Vendor() providers.Vendor {
	return providers.VendorPixelCut
}

// Name returns the provider name
func (a *PixelCutAdapter) Name() string {
	return string(providers.VendorPixelCut)
}

// HasCredential reports whether an API key is configured
func (a *PixelCutAdapter) HasCredential() bool {
	return a.config.APIKey != ""
}

// Generate uploads both images and downloads the result
func (a *PixelCutAdapter) Generate(ctx context.Context, req *providers.TryOnRequest) (*providers.Generation, error) {
	if !a.HasCredential() {
		return nil, providers.MissingCredential(a.Name())
	}
	if req.PersonImage == nil || req.GarmentImage == nil {
		return nil, providers.InvalidInput(a.Name(), "person and garment images are required")
	}

	mode, err := req.Options.OneOf("garment_mode", defaultGarmentMode, GarmentModes...)
	if err != nil {
		return nil, providers.InvalidInput(a.Name(), err.Error())
	}

	form := providers.NewMultipartForm(a.config.JPEGQuality)
	form.AddImage("person_image", "person.jpg", req.PersonImage)
	form.AddImage("garment_image", "garment.jpg", req.GarmentImage)
	form.AddField("garment_mode", mode)
	form.AddField("preprocess_garment", strconv.FormatBool(req.Options.Bool("preprocess_garment", true)))
	form.AddField("remove_background", strconv.FormatBool(req.Options.Bool("remove_background", false)))
	form.AddField("wait_for_result", strconv.FormatBool(req.Options.Bool("wait_for_result", true)))

	contentType, body, err := form.Close()
	if err != nil {
		return nil, providers.InvalidInput(a.Name(), "failed to encode upload: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+tryOnPath, body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.KindSubmitFailed, "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-API-KEY", a.config.APIKey)
	a.config.ApplyHeaders(httpReq)

	start := time.Now()
	resp, err := providers.Do(a.httpClient, httpReq)
	if err != nil {
		return nil, providers.SubmitTransportError(a.Name(), err)
	}

	switch {
	case resp.StatusCode == http.StatusAccepted:
		// Async jobs would need a status endpoint we do not track.
		return nil, providers.NewProviderError(a.Name(), providers.KindSubmitFailed,
			"pixelcut request was queued asynchronously; job tracking is not supported", resp.StatusCode, nil)
	case !resp.IsSuccess():
		return nil, providers.SubmitHTTPError(a.Name(), resp.StatusCode, resp.Body)
	}

	var out TryOnResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.KindDownloadFailed, "failed to unmarshal response", resp.StatusCode, err)
	}
	if out.ResultURL == "" {
		return nil, providers.NewProviderError(a.Name(), providers.KindDownloadFailed, "response does not contain result_url", resp.StatusCode, nil)
	}

	img, err := providers.DownloadImage(ctx, a.httpClient, a.Name(), out.ResultURL)
	if err != nil {
		return nil, err
	}

	a.logger.Info("try-on generated",
		zap.String("garment_mode", mode),
		zap.Duration("latency", time.Since(start)))

	return &providers.Generation{Image: img}, nil
}

// TryOnResponse is the synchronous PixelCut reply
type TryOnResponse struct {
	ResultURL string `json:"result_url"`
	JobID     string `json:"job_id,omitempty"`
}
