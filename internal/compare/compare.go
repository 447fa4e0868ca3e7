package compare

import (
	"context"
	"log/slog"
	"pixel-compare/internal/codec"
	diffimage "pixel-compare/internal/diff/image"
	"pixel-compare/internal/pixel"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type Codec interface {
	Decode(ctx context.Context, source string) (*pixel.Buffer, error)
	Encode(ctx context.Context, b *pixel.Buffer, format codec.Format, destination string) error
}

type Comparer struct {
	codec  Codec
	differ diffimage.Differ
	logger *slog.Logger
}

func NewComparer(codec Codec, differ diffimage.Differ, logger *slog.Logger) *Comparer {
	return &Comparer{
		codec,
		differ,
		logger,
	}
}

func (c *Comparer) PixelCompare(ctx context.Context, opts Options) (Outcome, error) {
	if opts.BaseImage == nil {
		return nil, ErrMissingBaseImage
	}

	var format codec.Format
	if opts.TestImage != nil && opts.OutputImage != "" {
		f, err := OutputFormat(opts.OutputImage)
		if err != nil {
			return nil, err
		}
		format = f
	}

	var base, test *pixel.Buffer
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		b, err := c.resolve(egCtx, opts.BaseImage)
		if err != nil {
			return xerrors.Errorf("failed to resolve base image: %w", err)
		}
		base = b
		return nil
	})
	if opts.TestImage != nil {
		eg.Go(func() error {
			b, err := c.resolve(egCtx, opts.TestImage)
			if err != nil {
				return xerrors.Errorf("failed to resolve test image: %w", err)
			}
			test = b
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if opts.TestImage == nil {
		bound := opts
		bound.BaseImage = Decoded{base}
		return &Deferred{
			&Bound{
				comparer: c,
				baseline: base,
				options:  bound,
			},
		}, nil
	}

	baseColor, testColor := opts.colors()
	result, err := c.differ.Compare(base, test, baseColor, testColor)
	if err != nil {
		return nil, xerrors.Errorf("failed to compare images: %w", err)
	}
	c.logger.DebugContext(ctx, "compared images", "isSame", result.IsSame, "mismatched", result.Mismatched, "width", result.Width, "height", result.Height)

	if opts.OutputImage != "" {
		if err := c.codec.Encode(ctx, result.Buffer(), format, opts.OutputImage); err != nil {
			return nil, xerrors.Errorf("failed to write output image: %w", err)
		}
		c.logger.DebugContext(ctx, "wrote output image", "outputImage", opts.OutputImage, "format", string(format))
	}

	return &Resolved{
		IsSame: result.IsSame,
		Result: result,
	}, nil
}

func (c *Comparer) resolve(ctx context.Context, source Source) (*pixel.Buffer, error) {
	switch s := source.(type) {
	case Decoded:
		if s.Buffer == nil {
			return nil, pixel.ErrInvalidBuffer
		}
		return s.Buffer, nil
	case Path:
		return c.codec.Decode(ctx, string(s))
	default:
		return nil, xerrors.Errorf("unknown image source %T", source)
	}
}

// Bound holds a decoded baseline together with the options it was created
// with. It is safe for concurrent use.
type Bound struct {
	comparer *Comparer
	baseline *pixel.Buffer
	options  Options
}

// Compare merges opts over the bound options and compares against the bound
// baseline. The baseline is never decoded again.
func (b *Bound) Compare(ctx context.Context, opts Options) (Outcome, error) {
	merged := b.options.Merge(opts)
	merged.BaseImage = Decoded{b.baseline}
	return b.comparer.PixelCompare(ctx, merged)
}

func (b *Bound) Baseline() *pixel.Buffer {
	return b.baseline
}
