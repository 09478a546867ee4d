package providers

import (
	"context"
	"errors"
	"image"
)

// Stage names the step at which a try-on failed
type Stage string

const (
	StageValidation Stage = "validation"
	StageSubmit     Stage = "submit"
	StagePoll       Stage = "poll"
	StageDownload   Stage = "download"
	StageTimeout    Stage = "timeout"
)

// TryOnResult is either a success carrying Image, or a failure carrying Stage
// and Reason. Exactly one of Image and Stage is set.
type TryOnResult struct {
	Vendor     Vendor
	Image      image.Image
	Stage      Stage
	Reason     string
	Advisories []string
	JobID      string
}

// IsSuccess reports whether the result carries an image
func (r TryOnResult) IsSuccess() bool {
	return r.Stage == "" && r.Image != nil
}

// Succeeded builds a success result
func Succeeded(vendor Vendor, img image.Image, advisories []string) TryOnResult {
	return TryOnResult{Vendor: vendor, Image: img, Advisories: advisories}
}

// Failed builds a failure result
func Failed(vendor Vendor, stage Stage, reason string) TryOnResult {
	return TryOnResult{Vendor: vendor, Stage: stage, Reason: reason}
}

// ResultFrom converts an adapter return pair into a TryOnResult
func ResultFrom(vendor Vendor, gen *Generation, err error) TryOnResult {
	if err != nil {
		if provErr, ok := AsProviderError(err); ok {
			return Failed(vendor, provErr.Stage(), provErr.Error())
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Failed(vendor, StageTimeout, err.Error())
		}
		return Failed(vendor, StageSubmit, err.Error())
	}
	if gen == nil || gen.Image == nil {
		return Failed(vendor, StageDownload, "vendor returned no image")
	}
	res := Succeeded(vendor, gen.Image, gen.Advisories)
	res.JobID = gen.JobID
	return res
}

// Run invokes p and converts its outcome into a TryOnResult
func Run(ctx context.Context, p Provider, req *TryOnRequest) TryOnResult {
	gen, err := p.Generate(ctx, req)
	res := ResultFrom(p.Vendor(), gen, err)
	if !res.IsSuccess() && gen != nil {
		res.Advisories = gen.Advisories
		res.JobID = gen.JobID
	}
	return res
}
