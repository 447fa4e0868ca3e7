package image

import (
	"pixel-compare/internal/pixel"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/xerrors"
)

var (
	ErrDimensionMismatch = xerrors.New("image sizes are not the same")
	ErrDepthMismatch     = xerrors.New("image depths are not the same")
)

const channels = 4

type PixelDiff struct {
	workers int
}

// NewPixelDiff returns a comparator splitting rows across workers goroutines.
// A non-positive count uses GOMAXPROCS.
func NewPixelDiff(workers int) *PixelDiff {
	return &PixelDiff{
		workers,
	}
}

func (p *PixelDiff) Compare(base *pixel.Buffer, test *pixel.Buffer, baseColor pixel.Color, testColor pixel.Color) (*Result, error) {
	if err := base.Validate(); err != nil {
		return nil, xerrors.Errorf("invalid base image: %w", err)
	}
	if err := test.Validate(); err != nil {
		return nil, xerrors.Errorf("invalid test image: %w", err)
	}
	if base.Width != test.Width || base.Height != test.Height {
		return nil, xerrors.Errorf("%w: base %dx%d, test %dx%d", ErrDimensionMismatch, base.Width, base.Height, test.Width, test.Height)
	}
	if base.Depth != test.Depth {
		return nil, xerrors.Errorf("%w: base %d, test %d", ErrDepthMismatch, base.Depth, test.Depth)
	}
	if base.Depth != channels {
		return nil, xerrors.Errorf("%w: %d", pixel.ErrUnsupportedDepth, base.Depth)
	}

	result := &Result{
		Width:    base.Width,
		Height:   base.Height,
		Depth:    base.Depth,
		Pix:      make([]uint8, len(base.Pix)),
		mismatch: make([]bool, base.Width*base.Height),
	}

	if base == test {
		copy(result.Pix, base.Pix)
		result.IsSame = true
		return result, nil
	}

	blendColor := pixel.Blend(baseColor, testColor)

	numWorkers := p.numWorkers(base.Height)
	rowsPerWorker := base.Height / numWorkers

	var mismatched int64
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = base.Height
		}

		go func(startY int, endY int) {
			defer wg.Done()
			p.processRows(base, test, result, baseColor, testColor, blendColor, startY, endY, &mismatched)
		}(startY, endY)
	}

	wg.Wait()

	result.Mismatched = mismatched
	result.IsSame = mismatched == 0
	if total := base.Width * base.Height; total > 0 {
		result.DiffAmount = float64(mismatched) / float64(total)
	}

	return result, nil
}

func (p *PixelDiff) numWorkers(height int) int {
	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	// https://tip.golang.org/doc/go1.25#container-aware-gomaxprocs
	n := p.workers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > height {
		n = height
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (p *PixelDiff) processRows(base *pixel.Buffer, test *pixel.Buffer, result *Result, baseColor pixel.Color, testColor pixel.Color, blendColor pixel.Color, startY int, endY int, mismatched *int64) {
	var localMismatched int64

	for y := startY; y < endY; y++ {
		rowStart := base.Offset(0, y)

		for x := 0; x < base.Width; x++ {
			offset := rowStart + x*channels

			br := base.Pix[offset]
			bg := base.Pix[offset+1]
			bb := base.Pix[offset+2]
			ba := base.Pix[offset+3]

			tr := test.Pix[offset]
			tg := test.Pix[offset+1]
			tb := test.Pix[offset+2]
			ta := test.Pix[offset+3]

			if br == tr && bg == tg && bb == tb && ba == ta {
				result.Pix[offset] = br
				result.Pix[offset+1] = bg
				result.Pix[offset+2] = bb
				result.Pix[offset+3] = ba
				continue
			}

			localMismatched++
			result.mismatch[y*base.Width+x] = true

			c := getDiffColor(br, bg, bb, ba, tr, tg, tb, ta, baseColor, testColor, blendColor)
			result.Pix[offset] = c[0]
			result.Pix[offset+1] = c[1]
			result.Pix[offset+2] = c[2]
			result.Pix[offset+3] = c[3]
		}
	}

	atomic.AddInt64(mismatched, localMismatched)
}

// getDiffColor picks the highlight for a mismatching pixel. An empty
// (transparent black) test pixel means content was removed, an empty base
// pixel means content was added, anything else changed.
func getDiffColor(br uint8, bg uint8, bb uint8, ba uint8, tr uint8, tg uint8, tb uint8, ta uint8, baseColor pixel.Color, testColor pixel.Color, blendColor pixel.Color) pixel.Color {
	if tr == 0 && tg == 0 && tb == 0 && ta == 0 {
		return baseColor
	}
	if br == 0 && bg == 0 && bb == 0 && ba == 0 {
		return testColor
	}
	return blendColor
}
