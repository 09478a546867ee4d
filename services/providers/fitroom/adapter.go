package fitroom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/upb/tryon-gateway/internal/imagecodec"
	"github.com/upb/tryon-gateway/services/providers"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://platform.fitroom.app/api"
	modelCheckPath = "/tryon/input_check/v1/model"
	clothCheckPath = "/tryon/input_check/v1/clothes"
	tasksPath      = "/tryon/v2/tasks"

	defaultClothType    = "upper"
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 60
	statusTimeout       = 10 * time.Second
)

// ClothTypeCombo submits an upper and a lower garment in one task
const ClothTypeCombo = "combo"

// ClothTypes accepted by the task endpoint
var ClothTypes = []string{"upper", "lower", "full_set", ClothTypeCombo}

// FitroomAdapter implements the Provider interface for the Fitroom API. Inputs
// are optionally prechecked, then a multipart task is created and polled.
type FitroomAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	poller     *providers.Poller
	logger     *zap.Logger
}

// NewFitroomAdapter creates a new Fitroom adapter
func NewFitroomAdapter(config providers.ProviderConfig, logger *zap.Logger) *FitroomAdapter {
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
	logger = logger.Named("fitroom")

	return &FitroomAdapter{
		config:     config,
		httpClient: config.NewHTTPClient(),
		poller:     providers.NewPoller(config.PollInterval, config.PollMaxAttempts, logger),
		logger:     logger,
	}
}

// Vendor returns the vendor identifier
func (a *FitroomAdapter) Vendor() providers.Vendor {
	return providers.VendorFitroom
}

// Name returns the provider name
func (a *FitroomAdapter) Name() string {
	return string(providers.VendorFitroom)
}

// HasCredential reports whether an API key is configured
func (a *FitroomAdapter) HasCredential() bool {
	return a.config.APIKey != ""
}

// Generate prechecks the inputs, creates a task and polls it. Advisories
// gathered before a failure are returned alongside the error.
func (a *FitroomAdapter) Generate(ctx context.Context, req *providers.TryOnRequest) (*providers.Generation, error) {
	if !a.HasCredential() {
		return nil, providers.MissingCredential(a.Name())
	}
	if req.PersonImage == nil || req.GarmentImage == nil {
		return nil, providers.InvalidInput(a.Name(), "person and garment images are required")
	}

	clothType, err := req.Options.OneOf("cloth_type", defaultClothType, ClothTypes...)
	if err != nil {
		return nil, providers.InvalidInput(a.Name(), err.Error())
	}
	if clothType == ClothTypeCombo && req.LowerGarmentImage == nil {
		return nil, providers.InvalidInput(a.Name(), "cloth_type combo requires a lower garment image")
	}

	gen := &providers.Generation{}

	if req.Options.Bool("check_images", true) {
		advisories, err := a.precheck(ctx, req, clothType)
		gen.Advisories = advisories
		if err != nil {
			return gen, err
		}
	}

	taskID, err := a.createTask(ctx, req, clothType)
	if err != nil {
		return gen, err
	}
	gen.JobID = taskID

	job := a.poller.Submitted(taskID)
	a.logger.Info("task created", zap.String("task_id", taskID), zap.String("cloth_type", clothType))

	url, err := a.poller.Run(ctx, a.Name(), job, a.checkTask)
	if err != nil {
		return gen, err
	}

	img, err := providers.DownloadImage(ctx, a.httpClient, a.Name(), url)
	if err != nil {
		return gen, err
	}

	gen.Image = img
	return gen, nil
}

// precheck runs the model and clothes checks. Only a model check failing with
// a 400-class error code is fatal; everything else becomes an advisory.
func (a *FitroomAdapter) precheck(ctx context.Context, req *providers.TryOnRequest, clothType string) ([]string, error) {
	var advisories []string

	var model ModelCheckResponse
	if err := a.check(ctx, modelCheckPath, "model.jpg", req.PersonImage, &model); err != nil {
		advisories = append(advisories, "model image check unavailable: "+err.Error())
	} else if !model.IsGood {
		code := model.code()
		if strings.HasPrefix(code, "400") {
			return advisories, providers.InvalidInput(a.Name(),
				fmt.Sprintf("model image cannot be used (error code %s)", code))
		}
		advisories = append(advisories, fmt.Sprintf("model image may be unsuitable (error code %s)", code))
	} else if clothType != ClothTypeCombo && !slices.Contains(model.GoodClothesTypes, clothType) {
		advisories = append(advisories,
			fmt.Sprintf("cloth type %q may not suit this model image", clothType))
	}

	var cloth ClothesCheckResponse
	if err := a.check(ctx, clothCheckPath, "clothes.jpg", req.GarmentImage, &cloth); err != nil {
		advisories = append(advisories, "clothes image check unavailable: "+err.Error())
	} else {
		if !cloth.IsClothes {
			advisories = append(advisories, "garment image may not show clothing")
		}
		detected := cloth.ClothesType
		if detected == "" {
			detected = "unknown"
		}
		if clothType != ClothTypeCombo && clothType != detected {
			advisories = append(advisories,
				fmt.Sprintf("detected cloth type %q differs from selected %q", detected, clothType))
		}
	}

	for _, adv := range advisories {
		a.logger.Warn("precheck advisory", zap.String("advisory", adv))
	}
	return advisories, nil
}

// check uploads one image to a precheck endpoint and decodes the reply
func (a *FitroomAdapter) check(ctx context.Context, path, filename string, img image.Image, out any) error {
	form := providers.NewMultipartForm(a.config.JPEGQuality)
	form.AddImage("input_image", filename, img)
	contentType, body, err := form.Close()
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+path, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", contentType)
	a.setHeaders(httpReq)

	resp, err := providers.Do(a.httpClient, httpReq)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.Unmarshal(resp.Body, out)
}

func (a *FitroomAdapter) createTask(ctx context.Context, req *providers.TryOnRequest, clothType string) (string, error) {
	form := providers.NewMultipartForm(a.config.JPEGQuality)
	form.AddImage("model_image", "model.jpg", req.PersonImage)
	form.AddImage("cloth_image", "cloth.jpg", req.GarmentImage)
	if clothType == ClothTypeCombo {
		form.AddImage("lower_cloth_image", "lower_cloth.jpg", req.LowerGarmentImage)
	}
	form.AddField("cloth_type", clothType)

	contentType, body, err := form.Close()
	if err != nil {
		return "", providers.InvalidInput(a.Name(), "failed to encode upload: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+tasksPath, body)
	if err != nil {
		return "", providers.NewProviderError(a.Name(), providers.KindSubmitFailed, "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	a.setHeaders(httpReq)

	resp, err := providers.Do(a.httpClient, httpReq)
	if err != nil {
		return "", providers.SubmitTransportError(a.Name(), err)
	}
	if !resp.IsSuccess() {
		return "", providers.SubmitHTTPError(a.Name(), resp.StatusCode, resp.Body)
	}

	var out TaskResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", providers.NewProviderError(a.Name(), providers.KindSubmitFailed, "failed to unmarshal task response", resp.StatusCode, err)
	}
	if out.TaskID == "" {
		return "", providers.NewProviderError(a.Name(), providers.KindSubmitFailed, "task response does not contain a task id", resp.StatusCode, nil)
	}
	return out.TaskID, nil
}

func (a *FitroomAdapter) checkTask(ctx context.Context, job *providers.JobHandle) (providers.PollOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+tasksPath+"/"+job.ID, nil)
	if err != nil {
		return providers.PollOutcome{}, err
	}
	a.setHeaders(httpReq)

	resp, err := providers.Do(a.httpClient, httpReq)
	if err != nil {
		return providers.PollOutcome{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return providers.PollOutcome{}, fmt.Errorf("task status returned %d", resp.StatusCode)
	}

	var task TaskStatusResponse
	if err := json.Unmarshal(resp.Body, &task); err != nil {
		return providers.PollOutcome{}, fmt.Errorf("failed to unmarshal task status: %w", err)
	}

	switch task.Status {
	case "COMPLETED":
		return providers.Completed(task.DownloadSignedURL), nil
	case "FAILED":
		if reason := providers.ErrorField(task.Error); reason != "" {
			return providers.FailedWith(reason), nil
		}
		return providers.FailedWith("task failed"), nil
	case "CREATED", "PROCESSING":
		return providers.Pending(task.Status, task.progress()), nil
	default:
		return providers.PollOutcome{}, fmt.Errorf("unknown task status %q", task.Status)
	}
}

func (a *FitroomAdapter) setHeaders(req *http.Request) {
	req.Header.Set("X-API-KEY", a.config.APIKey)
	a.config.ApplyHeaders(req)
}

// Fitroom-specific response types

type ModelCheckResponse struct {
	IsGood           bool            `json:"is_good"`
	ErrorCode        json.RawMessage `json:"error_code"`
	GoodClothesTypes []string        `json:"good_clothes_types"`
}

// code returns error_code as text whether it arrives as a string or a number
func (r ModelCheckResponse) code() string {
	if len(r.ErrorCode) == 0 || string(r.ErrorCode) == "null" {
		return "unknown"
	}
	var s string
	if err := json.Unmarshal(r.ErrorCode, &s); err == nil {
		return s
	}
	return string(r.ErrorCode)
}

type ClothesCheckResponse struct {
	IsClothes   bool   `json:"is_clothes"`
	ClothesType string `json:"clothes_type"`
}

type TaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status,omitempty"`
}

type TaskStatusResponse struct {
	TaskID            string          `json:"task_id"`
	Status            string          `json:"status"`
	Progress          json.RawMessage `json:"progress"`
	DownloadSignedURL string          `json:"download_signed_url"`
	Error             json.RawMessage `json:"error"`
}

// progress reads a whole, fractional or quoted percentage. Anything else is 0.
func (r TaskStatusResponse) progress() int {
	raw := bytes.Trim(r.Progress, `"`)
	if len(raw) == 0 {
		return 0
	}
	p, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0
	}
	return int(p)
}
