package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/upb/tryon-gateway/internal/imagecodec"
)

// maxErrorText bounds how much of a raw error body ends up in a reason.
const maxErrorText = 512

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports a 2xx status
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ContentType returns the response media type without parameters
func (r *Response) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}

// Do executes req and reads the whole body
func Do(client *http.Client, req *http.Request) (*Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// vendorErrorBody covers the error shapes the vendors are known to return.
type vendorErrorBody struct {
	Error   json.RawMessage `json:"error"`
	Message json.RawMessage `json:"message"`
	Detail  json.RawMessage `json:"detail"`
}

// VendorErrorText extracts a human readable reason from an error body. JSON
// bodies are searched for error, message and detail (strings or nested
// objects carrying a message); anything else yields the raw body text.
func VendorErrorText(body []byte) string {
	var parsed vendorErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, raw := range []json.RawMessage{parsed.Error, parsed.Message, parsed.Detail} {
			if text := ErrorField(raw); text != "" {
				return text
			}
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorText {
		text = text[:maxErrorText] + "..."
	}
	return text
}

// ErrorField returns the text of a vendor error field that may be a string or
// an object carrying a message. Absent, null and empty values yield "".
func ErrorField(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var nested struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		if nested.Message != "" {
			return nested.Message
		}
		if nested.Detail != "" {
			return nested.Detail
		}
	}

	return strings.TrimSpace(string(raw))
}

// IsTimeout reports whether err is a network or context timeout
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// SubmitHTTPError builds the submit failure for a non-success status
func SubmitHTTPError(provider string, statusCode int, body []byte) *ProviderError {
	return NewProviderError(
		provider,
		KindSubmitFailed,
		fmt.Sprintf("%s API error: %d - %s", provider, statusCode, VendorErrorText(body)),
		statusCode,
		nil,
	)
}

// SubmitTransportError builds the submit failure for a transport error
func SubmitTransportError(provider string, err error) *ProviderError {
	if IsTimeout(err) {
		return NewProviderError(provider, KindSubmitFailed, fmt.Sprintf("%s API request timed out", provider), 0, err)
	}
	return NewProviderError(provider, KindSubmitFailed, fmt.Sprintf("%s API connection error", provider), 0, err)
}

// DownloadImage fetches a result URL with exactly one GET and decodes it
func DownloadImage(ctx context.Context, client *http.Client, provider, url string) (image.Image, error) {
	if url == "" {
		return nil, NewProviderError(provider, KindDownloadFailed, "result image URL is missing", 0, nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewProviderError(provider, KindDownloadFailed, "failed to create download request", 0, err)
	}

	resp, err := Do(client, req)
	if err != nil {
		return nil, NewProviderError(provider, KindDownloadFailed, "failed to download result image", 0, err)
	}
	if !resp.IsSuccess() {
		return nil, NewProviderError(
			provider,
			KindDownloadFailed,
			fmt.Sprintf("failed to download result image: %d", resp.StatusCode),
			resp.StatusCode,
			nil,
		)
	}

	return DecodeResult(provider, resp.Body)
}

// DecodeResult decodes result bytes, reporting failures at the download stage
func DecodeResult(provider string, data []byte) (image.Image, error) {
	img, err := imagecodec.DecodeBytes(data)
	if err != nil {
		return nil, NewProviderError(provider, KindDownloadFailed, "result is not a decodable image", 0, err)
	}
	return img, nil
}
