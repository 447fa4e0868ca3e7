package pixel

import (
	"image"
	"image/color"

	"golang.org/x/xerrors"
)

var (
	ErrOutOfBounds      = xerrors.New("pixel coordinate out of bounds")
	ErrInvalidBuffer    = xerrors.New("invalid pixel buffer")
	ErrUnsupportedDepth = xerrors.New("unsupported channel depth")
)

// Buffer is a decoded raster image. Pix holds channel values row-major by y,
// then x, then channel. A Buffer must not be modified once it is shared.
type Buffer struct {
	Width  int
	Height int
	Depth  int
	Pix    []uint8
}

func New(width int, height int, depth int) *Buffer {
	return &Buffer{
		Width:  width,
		Height: height,
		Depth:  depth,
		Pix:    make([]uint8, width*height*depth),
	}
}

func (b *Buffer) Stride() int {
	return b.Width * b.Depth
}

func (b *Buffer) Offset(x int, y int) int {
	return y*b.Stride() + x*b.Depth
}

func (b *Buffer) Get(x int, y int, channel int) (uint8, error) {
	if x < 0 || x >= b.Width || y < 0 || y >= b.Height || channel < 0 || channel >= b.Depth {
		return 0, xerrors.Errorf("%w: (%d, %d, %d) in %dx%dx%d", ErrOutOfBounds, x, y, channel, b.Width, b.Height, b.Depth)
	}
	return b.Pix[b.Offset(x, y)+channel], nil
}

func (b *Buffer) Validate() error {
	if b == nil {
		return xerrors.Errorf("%w: nil buffer", ErrInvalidBuffer)
	}
	if b.Width < 0 || b.Height < 0 || b.Depth <= 0 {
		return xerrors.Errorf("%w: shape %dx%dx%d", ErrInvalidBuffer, b.Width, b.Height, b.Depth)
	}
	if len(b.Pix) != b.Width*b.Height*b.Depth {
		return xerrors.Errorf("%w: %d channel values for shape %dx%dx%d", ErrInvalidBuffer, len(b.Pix), b.Width, b.Height, b.Depth)
	}
	return nil
}

// Image wraps the buffer as an image.Image for encoding. Depth 4 shares Pix.
func (b *Buffer) Image() (image.Image, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	rect := image.Rect(0, 0, b.Width, b.Height)
	switch b.Depth {
	case 4:
		return &image.NRGBA{
			Pix:    b.Pix,
			Stride: b.Stride(),
			Rect:   rect,
		}, nil
	case 3:
		img := image.NewNRGBA(rect)
		for i, j := 0, 0; i < len(b.Pix); i, j = i+3, j+4 {
			img.Pix[j] = b.Pix[i]
			img.Pix[j+1] = b.Pix[i+1]
			img.Pix[j+2] = b.Pix[i+2]
			img.Pix[j+3] = 255
		}
		return img, nil
	case 1:
		return &image.Gray{
			Pix:    b.Pix,
			Stride: b.Stride(),
			Rect:   rect,
		}, nil
	default:
		return nil, xerrors.Errorf("%w: %d", ErrUnsupportedDepth, b.Depth)
	}
}

// FromImage realises img as a depth-4 buffer of non-premultiplied RGBA values.
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	b := New(bounds.Dx(), bounds.Dy(), 4)

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Height; y++ {
			start := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(b.Pix[b.Offset(0, y):b.Offset(0, y+1)], src.Pix[start:start+b.Stride()])
		}
	case *image.RGBA:
		for y := 0; y < b.Height; y++ {
			rowStart := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < b.Width; x++ {
				o := rowStart + x*4
				c := color.NRGBAModel.Convert(color.RGBA{R: src.Pix[o], G: src.Pix[o+1], B: src.Pix[o+2], A: src.Pix[o+3]}).(color.NRGBA)
				b.set(x, y, c.R, c.G, c.B, c.A)
			}
		}
	case *image.NRGBA64:
		for y := 0; y < b.Height; y++ {
			rowStart := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < b.Width; x++ {
				o := rowStart + x*8
				b.set(x, y, src.Pix[o], src.Pix[o+2], src.Pix[o+4], src.Pix[o+6])
			}
		}
	case *image.YCbCr:
		for y := 0; y < b.Height; y++ {
			for x := 0; x < b.Width; x++ {
				yi := src.YOffset(bounds.Min.X+x, bounds.Min.Y+y)
				ci := src.COffset(bounds.Min.X+x, bounds.Min.Y+y)
				r, g, bl := ycbcrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				b.set(x, y, r, g, bl, 255)
			}
		}
	case *image.Gray:
		for y := 0; y < b.Height; y++ {
			rowStart := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < b.Width; x++ {
				v := src.Pix[rowStart+x]
				b.set(x, y, v, v, v, 255)
			}
		}
	default:
		for y := 0; y < b.Height; y++ {
			for x := 0; x < b.Width; x++ {
				c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
				b.set(x, y, c.R, c.G, c.B, c.A)
			}
		}
	}

	return b
}

func (b *Buffer) set(x int, y int, r uint8, g uint8, bl uint8, a uint8) {
	o := b.Offset(x, y)
	b.Pix[o] = r
	b.Pix[o+1] = g
	b.Pix[o+2] = bl
	b.Pix[o+3] = a
}

// ycbcrToRGB converts full-range JFIF YCbCr with 16.16 fixed-point BT.601
// coefficients.
func ycbcrToRGB(y uint8, cb uint8, cr uint8) (uint8, uint8, uint8) {
	const (
		// 1.402 * 65536
		crToR = 91881
		// 0.344136 * 65536
		cbToG = 22554
		// 0.714136 * 65536
		crToG = 46802
		// 1.772 * 65536
		cbToB = 116130
	)

	yy := int32(y) * 0x10101
	cb1 := int32(cb) - 128
	cr1 := int32(cr) - 128

	r := (yy + crToR*cr1) >> 16
	g := (yy - cbToG*cb1 - crToG*cr1) >> 16
	b := (yy + cbToB*cb1) >> 16

	return clamp(r), clamp(g), clamp(b)
}

func clamp(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
