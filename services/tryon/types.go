package tryon

import (
	"github.com/upb/tryon-gateway/services/providers"
)

// VendorStatus describes one vendor for the status endpoints
type VendorStatus struct {
	Vendor     providers.Vendor  `json:"vendor"`
	Name       string            `json:"name"`
	Variant    providers.Variant `json:"variant"`
	Registered bool              `json:"registered"`
	Configured bool              `json:"configured"`
}
