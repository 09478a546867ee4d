package imagecodec

import (
	"image"

	"github.com/disintegration/imaging"
)

// Normalizer prepares uploaded images for submission: the longest side is
// capped at MaxSide (aspect ratio kept, Lanczos) and transparency is flattened
// onto white.
type Normalizer struct {
	MaxSide int
}

// NewNormalizer returns a Normalizer, falling back to DefaultMaxSide.
func NewNormalizer(maxSide int) *Normalizer {
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	return &Normalizer{MaxSide: maxSide}
}

// Normalize returns a new image; img is not modified. Images already within
// bounds are never upscaled.
func (n *Normalizer) Normalize(img image.Image) image.Image {
	if img == nil {
		return nil
	}

	var out image.Image = img
	b := img.Bounds()
	if b.Dx() > n.MaxSide || b.Dy() > n.MaxSide {
		out = imaging.Fit(img, n.MaxSide, n.MaxSide, imaging.Lanczos)
	}
	return Flatten(out)
}
