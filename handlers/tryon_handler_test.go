package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/tryon-gateway/internal/imagecodec"
	"github.com/upb/tryon-gateway/internal/observability"
	"github.com/upb/tryon-gateway/services"
	"github.com/upb/tryon-gateway/services/providers"
	"github.com/upb/tryon-gateway/services/tryon"
	"github.com/upb/tryon-gateway/utils"
	"go.uber.org/zap"
)

// MockTryOnService is a mock implementation of TryOnService
type MockTryOnService struct {
	mock.Mock
}

func (m *MockTryOnService) Generate(ctx context.Context, req *providers.TryOnRequest) providers.TryOnResult {
	args := m.Called(ctx, req)
	return args.Get(0).(providers.TryOnResult)
}

func (m *MockTryOnService) Vendors() []tryon.VendorStatus {
	args := m.Called()
	return args.Get(0).([]tryon.VendorStatus)
}

func (m *MockTryOnService) Ready() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockTryOnService) Metrics() []observability.OutcomeStat {
	args := m.Called()
	return args.Get(0).([]observability.OutcomeStat)
}

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	data, err := imagecodec.EncodeJPEG(img, 90)
	require.NoError(t, err)
	return data
}

func multipartRequest(t *testing.T, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	for name, data := range files {
		part, err := mw.CreateFormFile(name, name+".jpg")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tryon", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHandleTryOn(t *testing.T) {
	logger := zap.NewNop()

	t.Run("successful try-on", func(t *testing.T) {
		mockService := new(MockTryOnService)
		handler := NewTryOnHandler(mockService, 0, 0, logger)

		result := providers.Succeeded(providers.VendorFASHN, imaging.New(64, 48, color.White), []string{"first", "second"})
		result.JobID = "pred-1"

		mockService.On("Generate", mock.Anything, mock.MatchedBy(func(req *providers.TryOnRequest) bool {
			return req.Vendor == providers.VendorFASHN &&
				req.PersonImage.Bounds().Dx() == 40 &&
				req.GarmentImage.Bounds().Dx() == 20 &&
				req.LowerGarmentImage == nil &&
				req.Options["model_version"] == "tryon-v1.5" &&
				req.Options["vendor"] == nil
		})).Return(result)

		req := multipartRequest(t,
			map[string]string{"vendor": "fashn", "model_version": "tryon-v1.5"},
			map[string][]byte{"person_image": testJPEG(t, 40, 30), "garment_image": testJPEG(t, 20, 20)})
		w := httptest.NewRecorder()

		handler.HandleTryOn(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
		assert.Equal(t, "fashn", w.Header().Get(HeaderVendor))
		assert.Equal(t, "pred-1", w.Header().Get(HeaderJobID))
		assert.Equal(t, "first; second", w.Header().Get(HeaderAdvisories))

		img, err := imagecodec.DecodeBytes(w.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, 64, img.Bounds().Dx())
		assert.Equal(t, 48, img.Bounds().Dy())

		mockService.AssertExpectations(t)
	})

	t.Run("passes lower garment image", func(t *testing.T) {
		mockService := new(MockTryOnService)
		handler := NewTryOnHandler(mockService, 0, 0, logger)

		mockService.On("Generate", mock.Anything, mock.MatchedBy(func(req *providers.TryOnRequest) bool {
			return req.Vendor == providers.VendorFitroom &&
				req.LowerGarmentImage != nil &&
				req.Options["cloth_type"] == "combo"
		})).Return(providers.Succeeded(providers.VendorFitroom, imaging.New(8, 8, color.White), nil))

		req := multipartRequest(t,
			map[string]string{"vendor": "fitroom", "cloth_type": "combo"},
			map[string][]byte{
				"person_image":        testJPEG(t, 16, 16),
				"garment_image":       testJPEG(t, 16, 16),
				"lower_garment_image": testJPEG(t, 16, 16),
			})
		w := httptest.NewRecorder()

		handler.HandleTryOn(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get(HeaderJobID))
		assert.Empty(t, w.Header().Get(HeaderAdvisories))
		mockService.AssertExpectations(t)
	})

	t.Run("vendor failure maps stage to status", func(t *testing.T) {
		tests := []struct {
			stage          providers.Stage
			expectedStatus int
		}{
			{providers.StageValidation, http.StatusUnprocessableEntity},
			{providers.StageSubmit, http.StatusBadGateway},
			{providers.StageTimeout, http.StatusGatewayTimeout},
		}

		for _, tt := range tests {
			mockService := new(MockTryOnService)
			handler := NewTryOnHandler(mockService, 0, 0, logger)
			mockService.On("Generate", mock.Anything, mock.Anything).
				Return(providers.Failed(providers.VendorPixelCut, tt.stage, "boom"))

			req := multipartRequest(t,
				map[string]string{"vendor": "pixelcut"},
				map[string][]byte{"person_image": testJPEG(t, 8, 8), "garment_image": testJPEG(t, 8, 8)})
			w := httptest.NewRecorder()

			handler.HandleTryOn(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, tt.stage)
			response := decodeError(t, w)
			assert.Equal(t, "boom", response.Message)
			assert.Equal(t, string(tt.stage), response.Details["stage"])
		}
	})

	t.Run("request errors", func(t *testing.T) {
		tests := []struct {
			name          string
			fields        map[string]string
			files         map[string][]byte
			expectedField string
		}{
			{
				name:          "missing vendor",
				fields:        map[string]string{},
				files:         map[string][]byte{"person_image": testJPEG(t, 8, 8), "garment_image": testJPEG(t, 8, 8)},
				expectedField: "vendor",
			},
			{
				name:          "unknown vendor",
				fields:        map[string]string{"vendor": "acme"},
				files:         map[string][]byte{"person_image": testJPEG(t, 8, 8), "garment_image": testJPEG(t, 8, 8)},
				expectedField: "vendor",
			},
			{
				name:          "missing garment image",
				fields:        map[string]string{"vendor": "segmind"},
				files:         map[string][]byte{"person_image": testJPEG(t, 8, 8)},
				expectedField: "field",
			},
			{
				name:          "undecodable person image",
				fields:        map[string]string{"vendor": "segmind"},
				files:         map[string][]byte{"person_image": []byte("not an image"), "garment_image": testJPEG(t, 8, 8)},
				expectedField: "field",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				mockService := new(MockTryOnService)
				handler := NewTryOnHandler(mockService, 0, 0, logger)

				w := httptest.NewRecorder()
				handler.HandleTryOn(w, multipartRequest(t, tt.fields, tt.files))

				assert.Equal(t, http.StatusBadRequest, w.Code)
				response := decodeError(t, w)
				assert.Equal(t, "bad_request", response.Error)
				assert.Contains(t, response.Details, tt.expectedField)
				mockService.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		mockService := new(MockTryOnService)
		handler := NewTryOnHandler(mockService, 0, 0, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tryon", bytes.NewBufferString(`{"vendor":"fashn"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.HandleTryOn(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("upload too large", func(t *testing.T) {
		mockService := new(MockTryOnService)
		handler := NewTryOnHandler(mockService, 512, 0, logger)

		req := multipartRequest(t,
			map[string]string{"vendor": "fashn"},
			map[string][]byte{"person_image": testJPEG(t, 64, 64), "garment_image": testJPEG(t, 64, 64)})
		w := httptest.NewRecorder()

		handler.HandleTryOn(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "payload_too_large", decodeError(t, w).Error)
		mockService.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})
}

func TestReadImage(t *testing.T) {
	parse := func(t *testing.T, files map[string][]byte) *http.Request {
		req := multipartRequest(t, nil, files)
		require.NoError(t, req.ParseMultipartForm(1<<20))
		return req
	}

	t.Run("missing required image", func(t *testing.T) {
		img, err := readImage(parse(t, nil), "person_image", true)

		assert.Nil(t, img)
		assert.ErrorIs(t, err, services.ErrImageRequired)
		assert.Equal(t, "person_image is required", services.GetErrorMessage(err))
		assert.Equal(t, "person_image", services.GetErrorDetails(err)["field"])
		assert.Empty(t, services.ErrImageRequired.Details)
	})

	t.Run("missing optional image", func(t *testing.T) {
		img, err := readImage(parse(t, nil), "lower_garment_image", false)

		assert.NoError(t, err)
		assert.Nil(t, img)
	})

	t.Run("undecodable image", func(t *testing.T) {
		img, err := readImage(parse(t, map[string][]byte{"garment_image": []byte("not an image")}), "garment_image", true)

		assert.Nil(t, img)
		assert.ErrorIs(t, err, services.ErrUndecodableImage)
		assert.True(t, services.IsValidationError(err))
		assert.Equal(t, "garment_image", services.GetErrorDetails(err)["field"])
	})

	t.Run("decodable image", func(t *testing.T) {
		img, err := readImage(parse(t, map[string][]byte{"person_image": testJPEG(t, 8, 6)}), "person_image", true)

		require.NoError(t, err)
		assert.Equal(t, 8, img.Bounds().Dx())
	})
}

func TestHandleVendors(t *testing.T) {
	mockService := new(MockTryOnService)
	handler := NewTryOnHandler(mockService, 0, 0, zap.NewNop())

	mockService.On("Vendors").Return([]tryon.VendorStatus{
		{Vendor: providers.VendorSegmind, Name: "Segmind", Registered: true, Configured: true},
		{Vendor: providers.VendorFASHN, Name: "FASHN", Registered: true, Configured: false},
	})

	w := httptest.NewRecorder()
	handler.HandleVendors(w, httptest.NewRequest(http.MethodGet, "/api/v1/vendors", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data []tryon.VendorStatus `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Data, 2)
	assert.True(t, response.Data[0].Configured)
	assert.False(t, response.Data[1].Configured)
	mockService.AssertExpectations(t)
}

func TestHandleMetrics(t *testing.T) {
	mockService := new(MockTryOnService)
	handler := NewTryOnHandler(mockService, 0, 0, zap.NewNop())

	mockService.On("Metrics").Return([]observability.OutcomeStat{
		{Vendor: "fashn", Outcome: "failure", Stage: "timeout", Count: 2},
	})

	w := httptest.NewRecorder()
	handler.HandleMetrics(w, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data []observability.OutcomeStat `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Data, 1)
	assert.Equal(t, int64(2), response.Data[0].Count)
	assert.Equal(t, "timeout", response.Data[0].Stage)
}
