package providers

import (
	"bytes"
	"fmt"
	"image"
	"mime/multipart"
	"net/textproto"

	"github.com/upb/tryon-gateway/internal/imagecodec"
)

// MultipartForm accumulates JPEG file parts and text fields for an upload.
// The first error is sticky and returned by Close.
type MultipartForm struct {
	buf     bytes.Buffer
	writer  *multipart.Writer
	quality int
	err     error
}

// NewMultipartForm starts an empty form; images are encoded at quality
func NewMultipartForm(quality int) *MultipartForm {
	f := &MultipartForm{quality: quality}
	f.writer = multipart.NewWriter(&f.buf)
	return f
}

// AddImage encodes img as JPEG into a file part
func (f *MultipartForm) AddImage(field, filename string, img image.Image) {
	if f.err != nil {
		return
	}

	data, err := imagecodec.EncodeJPEG(img, f.quality)
	if err != nil {
		f.err = fmt.Errorf("%s: %w", field, err)
		return
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	h.Set("Content-Type", "image/jpeg")

	part, err := f.writer.CreatePart(h)
	if err != nil {
		f.err = err
		return
	}
	if _, err := part.Write(data); err != nil {
		f.err = err
	}
}

// AddField writes a plain text field
func (f *MultipartForm) AddField(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.writer.WriteField(name, value)
}

// Close finalises the form and returns its content type and body
func (f *MultipartForm) Close() (string, *bytes.Buffer, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	if err := f.writer.Close(); err != nil {
		return "", nil, err
	}
	return f.writer.FormDataContentType(), &f.buf, nil
}
