package fashn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/upb/tryon-gateway/internal/imagecodec"
	"github.com/upb/tryon-gateway/services/providers"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.fashn.ai/v1"
	runPath        = "/run"
	statusPath     = "/status/"

	ModelV16 = "tryon-v1.6"
	ModelV15 = "tryon-v1.5"

	defaultPollInterval = 3 * time.Second
	defaultMaxAttempts  = 40
	statusTimeout       = 10 * time.Second
)

var (
	// Categories accepted by both model versions
	Categories = []string{"auto", "tops", "bottoms", "one-pieces"}
	// GarmentPhotoTypes accepted by both model versions
	GarmentPhotoTypes = []string{"auto", "model", "flat-lay"}
	// Modes are only sent to tryon-v1.6
	Modes = []string{"performance", "balanced", "quality"}
)

// FASHNAdapter implements the Provider interface for the FASHN API. A job is
// submitted to /run and its status polled until it completes.
type FASHNAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	poller     *providers.Poller
	logger     *zap.Logger
}

// NewFASHNAdapter creates a new FASHN adapter
func NewFASHNAdapter(config providers.ProviderConfig, logger *zap.Logger) *FASHNAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.JPEGQuality == 0 {
		config.JPEGQuality = imagecodec.DefaultJPEGQuality
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.PollMaxAttempts == 0 {
		config.PollMaxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("fashn")

	return &FASHNAdapter{
		config:     config,
		httpClient: config.NewHTTPClient(),
		poller:     providers.NewPoller(config.PollInterval, config.PollMaxAttempts, logger),
		logger:     logger,
	}
}

// Vendor returns the vendor identifier
func (a *FASHNAdapter) Vendor() providers.Vendor {
	return providers.VendorFASHN
}

// Name returns the provider name
func (a *FASHNAdapter) Name() string {
	return string(providers.VendorFASHN)
}

// HasCredential reports whether an API key is configured
func (a *FASHNAdapter) HasCredential() bool {
	return a.config.APIKey != ""
}

// Generate submits a job, polls it to completion and downloads output[0]
func (a *FASHNAdapter) Generate(ctx context.Context, req *providers.TryOnRequest) (*providers.Generation, error) {
	if !a.HasCredential() {
		return nil, providers.MissingCredential(a.Name())
	}
	if req.PersonImage == nil || req.GarmentImage == nil {
		return nil, providers.InvalidInput(a.Name(), "person and garment images are required")
	}

	run, err := a.buildRunRequest(req)
	if err != nil {
		return nil, err
	}

	jobID, err := a.submit(ctx, run)
	if err != nil {
		return nil, err
	}

	job := a.poller.Submitted(jobID)
	a.logger.Info("job submitted", zap.String("job_id", jobID), zap.String("model_name", run.ModelName))

	output, err := a.poller.Run(ctx, a.Name(), job, a.checkStatus)
	if err != nil {
		return &providers.Generation{JobID: jobID}, err
	}

	img, err := providers.DownloadImage(ctx, a.httpClient, a.Name(), output)
	if err != nil {
		return &providers.Generation{JobID: jobID}, err
	}

	return &providers.Generation{Image: img, JobID: jobID}, nil
}

// buildRunRequest selects the input schema for the requested model version.
// Anything other than tryon-v1.6 uses the v1.5 schema.
func (a *FASHNAdapter) buildRunRequest(req *providers.TryOnRequest) (*RunRequest, error) {
	category, err := req.Options.OneOf("category", "auto", Categories...)
	if err != nil {
		return nil, providers.InvalidInput(a.Name(), err.Error())
	}
	photoType, err := req.Options.OneOf("garment_photo_type", "auto", GarmentPhotoTypes...)
	if err != nil {
		return nil, providers.InvalidInput(a.Name(), err.Error())
	}

	model, err := imagecodec.DataURI(req.PersonImage, a.config.JPEGQuality)
	if err != nil {
		return nil, providers.InvalidInput(a.Name(), "failed to encode person image: "+err.Error())
	}
	garment, err := imagecodec.DataURI(req.GarmentImage, a.config.JPEGQuality)
	if err != nil {
		return nil, providers.InvalidInput(a.Name(), "failed to encode garment image: "+err.Error())
	}

	version := req.Options.String("model_version", ModelV16)
	seed := req.Options.Int("seed", 42)
	samples := req.Options.Int("num_samples", 1)
	nsfwFilter := req.Options.Bool("nsfw_filter", true)

	if version == ModelV16 {
		mode, err := req.Options.OneOf("mode", "balanced", Modes...)
		if err != nil {
			return nil, providers.InvalidInput(a.Name(), err.Error())
		}
		moderation := "strict"
		if !nsfwFilter {
			moderation = "permissive"
		}
		return &RunRequest{ModelName: version, Inputs: InputsV16{
			ModelImage:       model,
			GarmentImage:     garment,
			Category:         category,
			Mode:             mode,
			GarmentPhotoType: photoType,
			ModerationLevel:  moderation,
			Seed:             seed,
			NumSamples:       samples,
			SegmentationFree: true,
			OutputFormat:     "png",
		}}, nil
	}

	return &RunRequest{ModelName: version, Inputs: InputsV15{
		ModelImage:        model,
		GarmentImage:      garment,
		Category:          category,
		GarmentPhotoType:  photoType,
		CoverFeet:         req.Options.Bool("cover_feet", false),
		AdjustHands:       req.Options.Bool("adjust_hands", false),
		RestoreBackground: req.Options.Bool("restore_background", false),
		RestoreClothes:    req.Options.Bool("restore_clothes", false),
		LongTop:           req.Options.Bool("long_top", false),
		GuidanceScale:     req.Options.Float("guidance_scale", 2),
		Timesteps:         req.Options.Int("timesteps", 50),
		Seed:              seed,
		NumSamples:        samples,
		NSFWFilter:        nsfwFilter,
	}}, nil
}

func (a *FASHNAdapter) submit(ctx context.Context, run *RunRequest) (string, error) {
	reqBody, err := json.Marshal(run)
	if err != nil {
		return "", providers.NewProviderError(a.Name(), providers.KindSubmitFailed, "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+runPath, bytes.NewReader(reqBody))
	if err != nil {
		return "", providers.NewProviderError(a.Name(), providers.KindSubmitFailed, "failed to create request", 0, err)
	}
	a.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := providers.Do(a.httpClient, httpReq)
	if err != nil {
		return "", providers.SubmitTransportError(a.Name(), err)
	}
	if !resp.IsSuccess() {
		return "", providers.SubmitHTTPError(a.Name(), resp.StatusCode, resp.Body)
	}

	var out RunResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", providers.NewProviderError(a.Name(), providers.KindSubmitFailed, "failed to unmarshal run response", resp.StatusCode, err)
	}
	if out.ID == "" {
		return "", providers.NewProviderError(a.Name(), providers.KindSubmitFailed, "run response does not contain a job id", resp.StatusCode, nil)
	}
	return out.ID, nil
}

// checkStatus performs one status request. Non-200 responses and unknown
// statuses are transient.
func (a *FASHNAdapter) checkStatus(ctx context.Context, job *providers.JobHandle) (providers.PollOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+statusPath+job.ID, nil)
	if err != nil {
		return providers.PollOutcome{}, err
	}
	a.setHeaders(httpReq)

	resp, err := providers.Do(a.httpClient, httpReq)
	if err != nil {
		return providers.PollOutcome{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return providers.PollOutcome{}, fmt.Errorf("status request returned %d", resp.StatusCode)
	}

	var status StatusResponse
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		return providers.PollOutcome{}, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	switch status.Status {
	case "completed":
		if len(status.Output) == 0 {
			return providers.Completed(""), nil
		}
		return providers.Completed(status.Output[0]), nil
	case "failed":
		if reason := providers.ErrorField(status.Error); reason != "" {
			return providers.FailedWith(reason), nil
		}
		return providers.FailedWith("unknown error"), nil
	case "starting", "in_queue", "processing":
		return providers.Pending(status.Status, 0), nil
	default:
		return providers.PollOutcome{}, fmt.Errorf("unknown job status %q", status.Status)
	}
}

func (a *FASHNAdapter) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	a.config.ApplyHeaders(req)
}

// FASHN-specific request/response types

type RunRequest struct {
	ModelName string `json:"model_name"`
	Inputs    any    `json:"inputs"`
}

// InputsV16 is the tryon-v1.6 input schema
type InputsV16 struct {
	ModelImage       string `json:"model_image"`
	GarmentImage     string `json:"garment_image"`
	Category         string `json:"category"`
	Mode             string `json:"mode"`
	GarmentPhotoType string `json:"garment_photo_type"`
	ModerationLevel  string `json:"moderation_level"`
	Seed             int    `json:"seed"`
	NumSamples       int    `json:"num_samples"`
	SegmentationFree bool   `json:"segmentation_free"`
	OutputFormat     string `json:"output_format"`
}

// InputsV15 is the tryon-v1.5 input schema
type InputsV15 struct {
	ModelImage        string  `json:"model_image"`
	GarmentImage      string  `json:"garment_image"`
	Category          string  `json:"category"`
	GarmentPhotoType  string  `json:"garment_photo_type"`
	CoverFeet         bool    `json:"cover_feet"`
	AdjustHands       bool    `json:"adjust_hands"`
	RestoreBackground bool    `json:"restore_background"`
	RestoreClothes    bool    `json:"restore_clothes"`
	LongTop           bool    `json:"long_top"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Timesteps         int     `json:"timesteps"`
	Seed              int     `json:"seed"`
	NumSamples        int     `json:"num_samples"`
	NSFWFilter        bool    `json:"nsfw_filter"`
}

type RunResponse struct {
	ID    string          `json:"id"`
	Error json.RawMessage `json:"error,omitempty"`
}

type StatusResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output []string        `json:"output"`
	Error  json.RawMessage `json:"error"`
}
