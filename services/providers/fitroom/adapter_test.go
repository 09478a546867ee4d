package fitroom

import (
	"context"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tryon-gateway/internal/imagecodec"
	"github.com/upb/tryon-gateway/services/providers"
	"go.uber.org/zap"
)

func testImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 220, G: 180, B: 20, A: 255})
		}
	}
	return img
}

func testRequest(opts providers.Options) *providers.TryOnRequest {
	return providers.NewTryOnRequest(providers.VendorFitroom, testImage(40, 60), testImage(20, 20), opts)
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type fakeFitroom struct {
	server     *httptest.Server
	modelCheck string
	clothCheck string
	checkCode  int
	taskCode   int
	taskBody   string
	statusFn   func(attempt int) string

	checkHits  int32
	taskHits   int32
	statusHits int32
	resultHits int32

	mu        sync.Mutex
	taskForm  map[string]string
	taskFiles map[string]string
}

func newFakeFitroom(t *testing.T) *fakeFitroom {
	t.Helper()
	result, err := imagecodec.EncodeJPEG(testImage(40, 60), 90)
	require.NoError(t, err)

	f := &fakeFitroom{
		modelCheck: `{"is_good":true,"good_clothes_types":["upper","lower","full_set"]}`,
		clothCheck: `{"is_clothes":true,"clothes_type":"upper"}`,
		checkCode:  http.StatusOK,
		taskCode:   http.StatusOK,
		taskBody:   `{"task_id":"task-9","status":"CREATED"}`,
	}
	f.statusFn = func(attempt int) string {
		if attempt < 3 {
			return `{"task_id":"task-9","status":"PROCESSING","progress":50}`
		}
		return `{"task_id":"task-9","status":"COMPLETED","progress":100,"download_signed_url":"` + f.server.URL + `/result.jpg"}`
	}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/result.jpg" {
			assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		}

		switch {
		case r.URL.Path == "/tryon/input_check/v1/model" || r.URL.Path == "/tryon/input_check/v1/clothes":
			atomic.AddInt32(&f.checkHits, 1)
			require.NoError(t, r.ParseMultipartForm(10<<20))
			_, header, err := r.FormFile("input_image")
			require.NoError(t, err)

			w.WriteHeader(f.checkCode)
			if strings.HasSuffix(r.URL.Path, "/model") {
				assert.Equal(t, "model.jpg", header.Filename)
				_, _ = w.Write([]byte(f.modelCheck))
			} else {
				assert.Equal(t, "clothes.jpg", header.Filename)
				_, _ = w.Write([]byte(f.clothCheck))
			}

		case r.URL.Path == "/tryon/v2/tasks" && r.Method == http.MethodPost:
			atomic.AddInt32(&f.taskHits, 1)
			require.NoError(t, r.ParseMultipartForm(10<<20))
			f.mu.Lock()
			f.taskForm = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				f.taskForm[k] = v[0]
			}
			f.taskFiles = map[string]string{}
			for k, headers := range r.MultipartForm.File {
				f.taskFiles[k] = headers[0].Filename
			}
			f.mu.Unlock()
			w.WriteHeader(f.taskCode)
			_, _ = w.Write([]byte(f.taskBody))

		case strings.HasPrefix(r.URL.Path, "/tryon/v2/tasks/"):
			attempt := int(atomic.AddInt32(&f.statusHits, 1))
			assert.Equal(t, "/tryon/v2/tasks/task-9", r.URL.Path)
			_, _ = w.Write([]byte(f.statusFn(attempt)))

		case r.URL.Path == "/result.jpg":
			atomic.AddInt32(&f.resultHits, 1)
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write(result)

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func newTestAdapter(baseURL, apiKey string) *FitroomAdapter {
	adapter := NewFitroomAdapter(providers.ProviderConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, zap.NewNop())
	adapter.poller.Sleep = noSleep
	return adapter
}

func TestNewFitroomAdapter(t *testing.T) {
	adapter := NewFitroomAdapter(providers.ProviderConfig{}, nil)

	assert.Equal(t, "fitroom", adapter.Name())
	assert.Equal(t, defaultBaseURL, adapter.config.BaseURL)
	assert.Equal(t, 2*time.Second, adapter.poller.Interval)
	assert.Equal(t, 60, adapter.poller.MaxAttempts)
	assert.False(t, adapter.HasCredential())
}

func TestFitroomAdapter_MissingCredential(t *testing.T) {
	fake := newFakeFitroom(t)
	adapter := newTestAdapter(fake.server.URL, "")

	res := providers.Run(context.Background(), adapter, testRequest(nil))

	assert.Equal(t, providers.StageValidation, res.Stage)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fake.checkHits))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fake.taskHits))
}

func TestFitroomAdapter_Success(t *testing.T) {
	fake := newFakeFitroom(t)
	adapter := newTestAdapter(fake.server.URL, "test-key")

	res := providers.Run(context.Background(), adapter, testRequest(nil))

	require.True(t, res.IsSuccess(), res.Reason)
	assert.Empty(t, res.Advisories)
	assert.Equal(t, "task-9", res.JobID)
	assert.Equal(t, image.Pt(40, 60), res.Image.Bounds().Size())
	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.checkHits))
	assert.Equal(t, int32(3), atomic.LoadInt32(&fake.statusHits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.resultHits))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, map[string]string{"cloth_type": "upper"}, fake.taskForm)
	assert.Equal(t, map[string]string{"model_image": "model.jpg", "cloth_image": "cloth.jpg"}, fake.taskFiles)
}

func TestFitroomAdapter_SkipsPrecheck(t *testing.T) {
	fake := newFakeFitroom(t)
	adapter := newTestAdapter(fake.server.URL, "test-key")

	res := providers.Run(context.Background(), adapter, testRequest(providers.Options{"check_images": "false"}))

	require.True(t, res.IsSuccess(), res.Reason)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fake.checkHits))
}

func TestFitroomAdapter_Combo(t *testing.T) {
	t.Run("requires lower garment", func(t *testing.T) {
		fake := newFakeFitroom(t)
		adapter := newTestAdapter(fake.server.URL, "test-key")

		res := providers.Run(context.Background(), adapter, testRequest(providers.Options{"cloth_type": "combo"}))

		assert.Equal(t, providers.StageValidation, res.Stage)
		assert.Equal(t, int32(0), atomic.LoadInt32(&fake.taskHits))
	})

	t.Run("uploads lower garment", func(t *testing.T) {
		fake := newFakeFitroom(t)
		adapter := newTestAdapter(fake.server.URL, "test-key")

		req := testRequest(providers.Options{"cloth_type": "combo"})
		req.LowerGarmentImage = testImage(20, 30)
		res := providers.Run(context.Background(), adapter, req)

		require.True(t, res.IsSuccess(), res.Reason)
		assert.Empty(t, res.Advisories)

		fake.mu.Lock()
		defer fake.mu.Unlock()
		assert.Equal(t, "combo", fake.taskForm["cloth_type"])
		assert.Equal(t, "lower_cloth.jpg", fake.taskFiles["lower_cloth_image"])
	})
}

func TestFitroomAdapter_Precheck(t *testing.T) {
	tests := []struct {
		name           string
		modelCheck     string
		clothCheck     string
		checkCode      int
		clothType      string
		wantStage      providers.Stage
		wantAdvisories []string
	}{
		{
			name:       "fatal model error code",
			modelCheck: `{"is_good":false,"error_code":"4001"}`,
			wantStage:  providers.StageValidation,
		},
		{
			name:           "non fatal model error code",
			modelCheck:     `{"is_good":false,"error_code":"5002"}`,
			wantAdvisories: []string{"model image may be unsuitable (error code 5002)"},
		},
		{
			name:           "cloth type not suited to model",
			modelCheck:     `{"is_good":true,"good_clothes_types":["upper"]}`,
			clothCheck:     `{"is_clothes":true,"clothes_type":"lower"}`,
			clothType:      "lower",
			wantAdvisories: []string{`cloth type "lower" may not suit this model image`},
		},
		{
			name:       "not clothes and type mismatch",
			clothCheck: `{"is_clothes":false,"clothes_type":"lower"}`,
			wantAdvisories: []string{
				"garment image may not show clothing",
				`detected cloth type "lower" differs from selected "upper"`,
			},
		},
		{
			name:      "precheck endpoints unavailable",
			checkCode: http.StatusInternalServerError,
			wantAdvisories: []string{
				"model image check unavailable: status 500",
				"clothes image check unavailable: status 500",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeFitroom(t)
			if tt.modelCheck != "" {
				fake.modelCheck = tt.modelCheck
			}
			if tt.clothCheck != "" {
				fake.clothCheck = tt.clothCheck
			}
			if tt.checkCode != 0 {
				fake.checkCode = tt.checkCode
			}
			adapter := newTestAdapter(fake.server.URL, "test-key")

			opts := providers.Options{}
			if tt.clothType != "" {
				opts["cloth_type"] = tt.clothType
			}
			res := providers.Run(context.Background(), adapter, testRequest(opts))

			if tt.wantStage != "" {
				assert.Equal(t, tt.wantStage, res.Stage)
				assert.Contains(t, res.Reason, "4001")
				assert.Equal(t, int32(0), atomic.LoadInt32(&fake.taskHits))
				return
			}
			require.True(t, res.IsSuccess(), res.Reason)
			assert.Equal(t, tt.wantAdvisories, res.Advisories)
		})
	}
}

func TestFitroomAdapter_FailedTaskKeepsAdvisories(t *testing.T) {
	fake := newFakeFitroom(t)
	fake.clothCheck = `{"is_clothes":false,"clothes_type":"upper"}`
	fake.statusFn = func(attempt int) string {
		return `{"task_id":"task-9","status":"FAILED","error":"Garment not detected"}`
	}
	adapter := newTestAdapter(fake.server.URL, "test-key")

	res := providers.Run(context.Background(), adapter, testRequest(nil))

	assert.Equal(t, providers.StagePoll, res.Stage)
	assert.Equal(t, "Garment not detected", res.Reason)
	assert.Equal(t, []string{"garment image may not show clothing"}, res.Advisories)
	assert.Equal(t, "task-9", res.JobID)
}

func TestFitroomAdapter_FailedTaskErrorShapes(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"error string", `{"task_id":"task-9","status":"FAILED","error":"Garment not detected"}`, "Garment not detected"},
		{"error object", `{"task_id":"task-9","status":"FAILED","error":{"message":"Garment not detected","code":"E_CLOTH"}}`, "Garment not detected"},
		{"fractional progress", `{"task_id":"task-9","status":"FAILED","progress":37.5,"error":"Garment not detected"}`, "Garment not detected"},
		{"null error", `{"task_id":"task-9","status":"FAILED","error":null}`, "task failed"},
		{"empty error", `{"task_id":"task-9","status":"FAILED","error":""}`, "task failed"},
		{"no error", `{"task_id":"task-9","status":"FAILED"}`, "task failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeFitroom(t)
			fake.statusFn = func(attempt int) string { return tt.body }
			adapter := newTestAdapter(fake.server.URL, "test-key")

			res := providers.Run(context.Background(), adapter, testRequest(providers.Options{"check_images": false}))

			assert.Equal(t, providers.StagePoll, res.Stage)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, "task-9", res.JobID)
			assert.Equal(t, int32(1), atomic.LoadInt32(&fake.statusHits))
			assert.Equal(t, int32(0), atomic.LoadInt32(&fake.resultHits))
		})
	}
}

func TestFitroomAdapter_FractionalProgress(t *testing.T) {
	fake := newFakeFitroom(t)
	fake.statusFn = func(attempt int) string {
		switch attempt {
		case 1:
			return `{"task_id":"task-9","status":"PROCESSING","progress":12.5}`
		case 2:
			return `{"task_id":"task-9","status":"PROCESSING","progress":"60"}`
		}
		return `{"task_id":"task-9","status":"COMPLETED","progress":100,"download_signed_url":"` + fake.server.URL + `/result.jpg"}`
	}
	adapter := newTestAdapter(fake.server.URL, "test-key")

	res := providers.Run(context.Background(), adapter, testRequest(providers.Options{"check_images": false}))

	require.True(t, res.IsSuccess(), res.Reason)
	assert.Equal(t, int32(3), atomic.LoadInt32(&fake.statusHits))
}

func TestTaskStatusResponse_Progress(t *testing.T) {
	assert.Equal(t, 50, TaskStatusResponse{Progress: []byte(`50`)}.progress())
	assert.Equal(t, 37, TaskStatusResponse{Progress: []byte(`37.5`)}.progress())
	assert.Equal(t, 80, TaskStatusResponse{Progress: []byte(`"80"`)}.progress())
	assert.Equal(t, 0, TaskStatusResponse{Progress: []byte(`null`)}.progress())
	assert.Equal(t, 0, TaskStatusResponse{}.progress())
}

func TestFitroomAdapter_TimesOutAfterMaxAttempts(t *testing.T) {
	fake := newFakeFitroom(t)
	fake.statusFn = func(attempt int) string {
		return `{"task_id":"task-9","status":"PROCESSING","progress":10}`
	}
	adapter := newTestAdapter(fake.server.URL, "test-key")

	res := providers.Run(context.Background(), adapter, testRequest(providers.Options{"check_images": false}))

	assert.Equal(t, providers.StageTimeout, res.Stage)
	assert.Equal(t, int32(60), atomic.LoadInt32(&fake.statusHits))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fake.resultHits))
}

func TestFitroomAdapter_SubmitFailures(t *testing.T) {
	t.Run("missing task id", func(t *testing.T) {
		fake := newFakeFitroom(t)
		fake.taskBody = `{"status":"CREATED"}`
		adapter := newTestAdapter(fake.server.URL, "test-key")

		res := providers.Run(context.Background(), adapter, testRequest(nil))

		assert.Equal(t, providers.StageSubmit, res.Stage)
		assert.Equal(t, int32(0), atomic.LoadInt32(&fake.statusHits))
	})

	t.Run("non-2xx status", func(t *testing.T) {
		fake := newFakeFitroom(t)
		fake.taskCode = http.StatusPaymentRequired
		fake.taskBody = `{"error":"Insufficient credits"}`
		adapter := newTestAdapter(fake.server.URL, "test-key")

		res := providers.Run(context.Background(), adapter, testRequest(providers.Options{"check_images": false}))

		assert.Equal(t, providers.StageSubmit, res.Stage)
		assert.Contains(t, res.Reason, "Insufficient credits")
		assert.Equal(t, int32(0), atomic.LoadInt32(&fake.statusHits))
	})

	t.Run("invalid cloth type", func(t *testing.T) {
		fake := newFakeFitroom(t)
		adapter := newTestAdapter(fake.server.URL, "test-key")

		res := providers.Run(context.Background(), adapter, testRequest(providers.Options{"cloth_type": "hat"}))

		assert.Equal(t, providers.StageValidation, res.Stage)
		assert.Equal(t, int32(0), atomic.LoadInt32(&fake.checkHits))
	})
}

func TestFitroomAdapter_AcceptsCreatedStatus(t *testing.T) {
	fake := newFakeFitroom(t)
	fake.taskCode = http.StatusCreated
	adapter := newTestAdapter(fake.server.URL, "test-key")

	res := providers.Run(context.Background(), adapter, testRequest(providers.Options{"check_images": false}))

	require.True(t, res.IsSuccess(), res.Reason)
	assert.Equal(t, "task-9", res.JobID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.taskHits))
}

func TestModelCheckResponse_Code(t *testing.T) {
	assert.Equal(t, "4001", ModelCheckResponse{ErrorCode: []byte(`"4001"`)}.code())
	assert.Equal(t, "4002", ModelCheckResponse{ErrorCode: []byte(`4002`)}.code())
	assert.Equal(t, "unknown", ModelCheckResponse{}.code())
}
