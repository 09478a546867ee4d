// Package imagecodec converts between decoded bitmaps and the byte and text
// forms the try-on vendors accept and return.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"

	"github.com/disintegration/imaging"

	// Result images from some vendors come back as WebP.
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxSide     = 1024
	DefaultJPEGQuality = 95
)

var ErrEmptyImage = errors.New("empty image data")

// Decode reads any registered image format (JPEG, PNG, GIF, WebP), applying
// EXIF orientation.
func Decode(r io.Reader) (image.Image, error) {
	if r == nil {
		return nil, ErrEmptyImage
	}
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// DecodeBytes decodes an in-memory image.
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return Decode(bytes.NewReader(data))
}

// Flatten composites img onto an opaque white canvas of the same size.
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// EncodeJPEG flattens alpha onto white and encodes img as JPEG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, Flatten(img), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64 returns the standard base64 form of the JPEG encoding.
func EncodeBase64(img image.Image, quality int) (string, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DataURI returns the JPEG encoding as a data:image/jpeg;base64 URI.
func DataURI(img image.Image, quality int) (string, error) {
	encoded, err := EncodeBase64(img, quality)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + encoded, nil
}

// DecodeBase64 decodes a base64 payload, with or without a data URI prefix,
// into an image.
func DecodeBase64(s string) (image.Image, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return DecodeBytes(data)
}
