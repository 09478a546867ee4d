package providers

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Vendor identifies one of the external try-on APIs
type Vendor string

const (
	VendorSegmind  Vendor = "segmind"
	VendorPixelCut Vendor = "pixelcut"
	VendorFASHN    Vendor = "fashn"
	VendorFitroom  Vendor = "fitroom"
)

// Variant describes the interaction shape of a vendor API
type Variant string

const (
	// VariantDiffusionStyle is one JSON POST with inline base64 images.
	VariantDiffusionStyle Variant = "diffusion_style"
	// VariantSyncUpload is one multipart POST followed by a result download.
	VariantSyncUpload Variant = "sync_upload"
	// VariantPollingJob submits a JSON job and polls for completion.
	VariantPollingJob Variant = "polling_job"
	// VariantCheckedPollingJob prechecks inputs, submits a multipart job and polls.
	VariantCheckedPollingJob Variant = "checked_polling_job"
)

var vendorInfo = map[Vendor]struct {
	name    string
	variant Variant
}{
	VendorSegmind:  {"Segmind Try-On Diffusion", VariantDiffusionStyle},
	VendorPixelCut: {"PixelCut Try-On", VariantSyncUpload},
	VendorFASHN:    {"FASHN Try-On", VariantPollingJob},
	VendorFitroom:  {"Fitroom Try-On", VariantCheckedPollingJob},
}

// AllVendors returns every supported vendor in a stable order
func AllVendors() []Vendor {
	vendors := make([]Vendor, 0, len(vendorInfo))
	for v := range vendorInfo {
		vendors = append(vendors, v)
	}
	sort.Slice(vendors, func(i, j int) bool { return vendors[i] < vendors[j] })
	return vendors
}

// ParseVendor resolves a case-insensitive vendor name
func ParseVendor(s string) (Vendor, error) {
	v := Vendor(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := vendorInfo[v]; !ok {
		return "", fmt.Errorf("unknown vendor %q", s)
	}
	return v, nil
}

// Valid reports whether v is a supported vendor
func (v Vendor) Valid() bool {
	_, ok := vendorInfo[v]
	return ok
}

// DisplayName returns the human readable vendor name
func (v Vendor) DisplayName() string {
	if info, ok := vendorInfo[v]; ok {
		return info.name
	}
	return string(v)
}

// Variant returns the interaction shape of the vendor
func (v Vendor) Variant() Variant {
	return vendorInfo[v].variant
}

// Provider is the common contract of every try-on vendor adapter
type Provider interface {
	// Vendor returns the vendor this adapter talks to
	Vendor() Vendor

	// Name returns the provider name used in logs and errors
	Name() string

	// HasCredential reports whether an API key is configured
	HasCredential() bool

	// Generate performs one try-on. Failures are returned as *ProviderError.
	Generate(ctx context.Context, req *TryOnRequest) (*Generation, error)
}

// TryOnRequest is built once per user action and never mutated by adapters
type TryOnRequest struct {
	// PersonImage is the photo of the person (required)
	PersonImage image.Image

	// GarmentImage is the garment photo (required)
	GarmentImage image.Image

	// LowerGarmentImage is only used by combined upper+lower submissions
	LowerGarmentImage image.Image

	// Vendor selects the adapter
	Vendor Vendor

	// Options holds vendor specific parameters
	Options Options
}

// NewTryOnRequest builds a request with a non-nil options map
func NewTryOnRequest(vendor Vendor, person, garment image.Image, opts Options) *TryOnRequest {
	if opts == nil {
		opts = Options{}
	}
	return &TryOnRequest{
		PersonImage:  person,
		GarmentImage: garment,
		Vendor:       vendor,
		Options:      opts,
	}
}

// Generation is a successful adapter outcome
type Generation struct {
	Image image.Image

	// Advisories are non-blocking warnings raised while processing
	Advisories []string

	// JobID is set by the submit-then-poll vendors
	JobID string
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout for each HTTP call
	Timeout time.Duration

	// JPEGQuality used when encoding uploads
	JPEGQuality int

	// PollInterval between status checks (polling vendors only)
	PollInterval time.Duration

	// PollMaxAttempts is the polling ceiling (polling vendors only)
	PollMaxAttempts int

	// Additional headers
	Headers map[string]string

	// HTTPClient overrides the client built from Timeout
	HTTPClient *http.Client
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:     30 * time.Second,
		JPEGQuality: 95,
		Headers:     make(map[string]string),
	}
}

// NewHTTPClient returns config.HTTPClient or a client with config.Timeout
func (c ProviderConfig) NewHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// ApplyHeaders copies the configured extra headers onto req
func (c ProviderConfig) ApplyHeaders(req *http.Request) {
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
}
