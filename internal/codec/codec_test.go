package codec_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"pixel-compare/internal/codec"
	"pixel-compare/internal/pixel"
	"pixel-compare/internal/storage"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, directory string, opts ...codec.Option) *codec.Codec {
	t.Helper()
	s, err := storage.NewFileStorage(context.Background(), storage.FileConfig{Directory: directory})
	require.NoErrorf(t, err, "Could not create the file storage: %v", err)
	return codec.NewCodec(s, opts...)
}

func testBuffer() *pixel.Buffer {
	b := pixel.New(3, 2, 4)
	for i := range b.Pix {
		b.Pix[i] = uint8(i * 10)
	}
	return b
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"jpeg", "jpg", "png"} {
		f, err := codec.ParseFormat(s)
		require.NoError(t, err)
		assert.Equal(t, codec.Format(s), f)
		assert.Equal(t, "."+s, f.Extension())
	}

	_, err := codec.ParseFormat("gif")
	assert.ErrorIs(t, err, codec.ErrUnsupportedFormat)
}

func TestEncodeDecodePNG(t *testing.T) {
	directory := t.TempDir()
	c := newTestCodec(t, directory)
	ctx := context.Background()

	want := testBuffer()
	err := c.Encode(ctx, want, codec.PNG, "diff.png")
	require.NoErrorf(t, err, "Could not encode the test image: %v", err)

	got, err := c.Decode(ctx, filepath.Join(directory, "diff.png"))
	require.NoErrorf(t, err, "Could not decode the encoded image: %v", err)
	require.EqualValuesf(t, want, got, "The image was not encoded losslessly")
}

func TestEncodeDecodeJPEG(t *testing.T) {
	directory := t.TempDir()
	c := newTestCodec(t, directory, codec.WithJPEGQuality(100))
	ctx := context.Background()

	want := pixel.New(8, 8, 4)
	for i := 0; i < len(want.Pix); i += 4 {
		want.Pix[i] = 200
		want.Pix[i+3] = 255
	}

	err := c.Encode(ctx, want, codec.JPG, "diff.jpg")
	require.NoErrorf(t, err, "Could not encode the test image: %v", err)

	got, err := c.Decode(ctx, "diff.jpg")
	require.NoErrorf(t, err, "Could not decode the encoded image: %v", err)
	assert.Equal(t, want.Width, got.Width)
	assert.Equal(t, want.Height, got.Height)
	assert.Equal(t, 4, got.Depth)
	assert.InDelta(t, 200, int(got.Pix[0]), 8)
	assert.Equal(t, uint8(255), got.Pix[3])
}

func TestDecodeBytes(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(1, 1, color.NRGBA{R: 1, G: 2, B: 3, A: 4})

	var buffer bytes.Buffer
	require.NoError(t, png.Encode(&buffer, img))

	got, err := newTestCodec(t, t.TempDir()).DecodeBytes(buffer.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2, 3, 4}, got.Pix[got.Offset(1, 1):got.Offset(1, 1)+4])
}

func TestDecodeErrors(t *testing.T) {
	directory := t.TempDir()
	c := newTestCodec(t, directory)
	ctx := context.Background()

	_, err := c.Decode(ctx, "missing.png")
	var decodeError *codec.DecodeError
	require.True(t, errors.As(err, &decodeError), "Expected a DecodeError, got %v", err)
	assert.Equal(t, "missing.png", decodeError.Source)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(filepath.Join(directory, "garbage.png"), []byte("not an image"), 0644))
	_, err = c.Decode(ctx, "garbage.png")
	assert.True(t, errors.As(err, &decodeError), "Expected a DecodeError, got %v", err)

	_, err = c.DecodeBytes([]byte("not an image"))
	assert.True(t, errors.As(err, &decodeError), "Expected a DecodeError, got %v", err)
}

func TestEncodeErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("UnsupportedFormat", func(t *testing.T) {
		err := newTestCodec(t, t.TempDir()).Encode(ctx, testBuffer(), codec.Format("gif"), "diff.gif")
		var encodeError *codec.EncodeError
		require.True(t, errors.As(err, &encodeError), "Expected an EncodeError, got %v", err)
		assert.ErrorIs(t, err, codec.ErrUnsupportedFormat)
	})

	t.Run("InvalidBuffer", func(t *testing.T) {
		err := newTestCodec(t, t.TempDir()).EncodeTo(&bytes.Buffer{}, &pixel.Buffer{Width: 2, Height: 2, Depth: 4}, codec.PNG)
		var encodeError *codec.EncodeError
		require.True(t, errors.As(err, &encodeError), "Expected an EncodeError, got %v", err)
		assert.ErrorIs(t, err, pixel.ErrInvalidBuffer)
	})

	t.Run("ReadOnlyDestination", func(t *testing.T) {
		c := codec.NewCodec(storage.NewHTTPStorage(nil))
		err := c.Encode(ctx, testBuffer(), codec.PNG, "https://example.invalid/diff.png")
		var writeError *codec.WriteError
		require.True(t, errors.As(err, &writeError), "Expected a WriteError, got %v", err)
		assert.ErrorIs(t, err, storage.ErrReadOnly)
	})
}

func TestDecodeMaxPixels(t *testing.T) {
	directory := t.TempDir()
	ctx := context.Background()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	var buffer bytes.Buffer
	require.NoError(t, png.Encode(&buffer, img))
	require.NoError(t, os.WriteFile(filepath.Join(directory, "large.png"), buffer.Bytes(), 0644))

	limited := newTestCodec(t, directory, codec.WithMaxPixels(15))
	_, err := limited.Decode(ctx, "large.png")
	var decodeError *codec.DecodeError
	require.True(t, errors.As(err, &decodeError), "Expected a DecodeError, got %v", err)
	assert.ErrorIs(t, err, codec.ErrImageTooLarge)

	_, err = limited.DecodeBytes(buffer.Bytes())
	assert.ErrorIs(t, err, codec.ErrImageTooLarge)

	got, err := newTestCodec(t, directory, codec.WithMaxPixels(16)).Decode(ctx, "large.png")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Width)
}
