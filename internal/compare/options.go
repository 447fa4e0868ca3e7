package compare

import (
	"pixel-compare/internal/codec"
	diffimage "pixel-compare/internal/diff/image"
	"pixel-compare/internal/pixel"
	"strings"

	"golang.org/x/xerrors"
)

var (
	ErrMissingBaseImage        = xerrors.New("base image is required")
	ErrUnsupportedOutputFormat = xerrors.New("unsupported output image format")
)

// Source is either a Path to be decoded or an already Decoded buffer.
type Source interface {
	isSource()
}

type Path string

func (Path) isSource() {}

type Decoded struct {
	Buffer *pixel.Buffer
}

func (Decoded) isSource() {}

type Options struct {
	BaseImage   Source
	TestImage   Source
	OutputImage string
	BaseColor   *pixel.Color
	TestColor   *pixel.Color
}

// Merge returns o with every field set in override replacing its own.
func (o Options) Merge(override Options) Options {
	if override.BaseImage != nil {
		o.BaseImage = override.BaseImage
	}
	if override.TestImage != nil {
		o.TestImage = override.TestImage
	}
	if override.OutputImage != "" {
		o.OutputImage = override.OutputImage
	}
	if override.BaseColor != nil {
		o.BaseColor = override.BaseColor
	}
	if override.TestColor != nil {
		o.TestColor = override.TestColor
	}
	return o
}

func (o Options) colors() (pixel.Color, pixel.Color) {
	baseColor, testColor := pixel.DefaultBaseColor, pixel.DefaultTestColor
	if o.BaseColor != nil {
		baseColor = *o.BaseColor
	}
	if o.TestColor != nil {
		testColor = *o.TestColor
	}
	return baseColor, testColor
}

var outputFormats = []struct {
	suffix string
	format codec.Format
}{
	{".jpeg", codec.JPEG},
	{".png", codec.PNG},
	{".jpg", codec.JPG},
}

// OutputFormat maps an output path to its encoding by exact, case-sensitive
// suffix.
func OutputFormat(path string) (codec.Format, error) {
	for _, f := range outputFormats {
		if strings.HasSuffix(path, f.suffix) {
			return f.format, nil
		}
	}
	return "", xerrors.Errorf("%w: %q", ErrUnsupportedOutputFormat, path)
}

// Outcome is either Resolved or Deferred.
type Outcome interface {
	isOutcome()
}

type Resolved struct {
	IsSame bool
	Result *diffimage.Result
}

func (*Resolved) isOutcome() {}

// Deferred is returned when no test image was given. Its Bound compares
// later test images against the already decoded baseline.
type Deferred struct {
	*Bound
}

func (*Deferred) isOutcome() {}
