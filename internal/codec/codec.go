package codec

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"pixel-compare/internal/pixel"
	"pixel-compare/internal/storage"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
	"golang.org/x/xerrors"
)

type Format string

const (
	JPEG Format = "jpeg"
	JPG  Format = "jpg"
	PNG  Format = "png"
)

var (
	ErrUnsupportedFormat = xerrors.New("unsupported image format")
	ErrImageTooLarge     = xerrors.New("image exceeds the pixel limit")
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case JPEG, JPG, PNG:
		return f, nil
	default:
		return "", xerrors.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

func (f Format) Extension() string {
	return "." + string(f)
}

func (f Format) imagingFormat() (imaging.Format, error) {
	switch f {
	case JPEG, JPG:
		return imaging.JPEG, nil
	case PNG:
		return imaging.PNG, nil
	default:
		return 0, xerrors.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
	}
}

type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return "failed to decode " + e.Source + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type EncodeError struct {
	Format Format
	Err    error
}

func (e *EncodeError) Error() string {
	return "failed to encode " + string(e.Format) + ": " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

type WriteError struct {
	Destination string
	Err         error
}

func (e *WriteError) Error() string {
	return "failed to write " + e.Destination + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

type Codec struct {
	storage         storage.Storage
	jpegQuality     int
	pngCompression  png.CompressionLevel
	autoOrientation bool
	maxPixels       int64
}

type Option func(*Codec)

func WithJPEGQuality(quality int) Option {
	return func(c *Codec) {
		c.jpegQuality = quality
	}
}

func WithPNGCompression(level png.CompressionLevel) Option {
	return func(c *Codec) {
		c.pngCompression = level
	}
}

// WithAutoOrientation applies the EXIF orientation tag of JPEG sources.
func WithAutoOrientation(enabled bool) Option {
	return func(c *Codec) {
		c.autoOrientation = enabled
	}
}

// WithMaxPixels rejects sources whose declared width*height exceeds n before
// any pixel data is allocated. Zero or less disables the check.
func WithMaxPixels(n int64) Option {
	return func(c *Codec) {
		c.maxPixels = n
	}
}

func NewCodec(s storage.Storage, opts ...Option) *Codec {
	c := &Codec{
		storage:        s,
		jpegQuality:    95,
		pngCompression: png.DefaultCompression,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) Decode(ctx context.Context, source string) (*pixel.Buffer, error) {
	data, err := c.storage.Get(ctx, source)
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}

	b, err := c.decode(data)
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}
	return b, nil
}

func (c *Codec) DecodeBytes(data []byte) (*pixel.Buffer, error) {
	b, err := c.decode(data)
	if err != nil {
		return nil, &DecodeError{Source: "<bytes>", Err: err}
	}
	return b, nil
}

func (c *Codec) decode(data []byte) (*pixel.Buffer, error) {
	if c.maxPixels > 0 {
		config, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		if pixels := int64(config.Width) * int64(config.Height); pixels > c.maxPixels {
			return nil, xerrors.Errorf("%w: %dx%d", ErrImageTooLarge, config.Width, config.Height)
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(c.autoOrientation))
	if err != nil {
		return nil, err
	}
	return pixel.FromImage(img), nil
}

func (c *Codec) Encode(ctx context.Context, b *pixel.Buffer, format Format, destination string) error {
	var buffer bytes.Buffer
	if err := c.EncodeTo(&buffer, b, format); err != nil {
		return err
	}

	if _, err := c.storage.Put(ctx, destination, buffer.Bytes()); err != nil {
		return &WriteError{Destination: destination, Err: err}
	}
	return nil
}

func (c *Codec) EncodeTo(w io.Writer, b *pixel.Buffer, format Format) error {
	f, err := format.imagingFormat()
	if err != nil {
		return &EncodeError{Format: format, Err: err}
	}

	img, err := b.Image()
	if err != nil {
		return &EncodeError{Format: format, Err: err}
	}

	if err := imaging.Encode(w, img, f, imaging.JPEGQuality(c.jpegQuality), imaging.PNGCompressionLevel(c.pngCompression)); err != nil {
		return &EncodeError{Format: format, Err: err}
	}
	return nil
}
