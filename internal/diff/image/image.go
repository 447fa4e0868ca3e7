package image

import (
	"pixel-compare/internal/pixel"
)

type Differ interface {
	Compare(base *pixel.Buffer, test *pixel.Buffer, baseColor pixel.Color, testColor pixel.Color) (*Result, error)
}

// Result is the outcome of a single comparison. Pix is freshly allocated and
// owned by the caller.
type Result struct {
	IsSame     bool
	Width      int
	Height     int
	Depth      int
	Pix        []uint8
	Mismatched int64
	DiffAmount float64

	mismatch []bool
}

// Buffer wraps the highlighted pixels with the shape of the compared images.
func (r *Result) Buffer() *pixel.Buffer {
	return &pixel.Buffer{
		Width:  r.Width,
		Height: r.Height,
		Depth:  r.Depth,
		Pix:    r.Pix,
	}
}
