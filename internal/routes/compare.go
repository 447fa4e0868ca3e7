package routes

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"pixel-compare/internal/codec"
	"pixel-compare/internal/compare"
	diffimage "pixel-compare/internal/diff/image"
	"pixel-compare/internal/myhttp"
	"pixel-compare/internal/pixel"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

const maxMemory = 32 << 20

type CompareResponse struct {
	IsSame      bool                  `json:"isSame"`
	DiffAmount  float64               `json:"diffAmount"`
	Mismatched  int64                 `json:"mismatched"`
	Regions     []diffimage.Rectangle `json:"regions"`
	DiffData    string                `json:"diffData"`
	OutputImage string                `json:"outputImage,omitempty"`
}

// Codec is the part of the image codec the routes need.
type Codec interface {
	DecodeBytes(data []byte) (*pixel.Buffer, error)
	EncodeTo(w io.Writer, b *pixel.Buffer, format codec.Format) error
}

var errBadRequest = xerrors.New("bad request")

type compareRequest struct {
	options compare.Options
	format  codec.Format
}

func Compare(comparer *compare.Comparer, c Codec, pixelComparisons metric.Int64Counter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := myhttp.Logger(r.Context())

		if !parseForm(w, r) {
			return
		}

		request, err := parseCompareRequest(r)
		if err != nil {
			logger.Debug("invalid compare request", "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var base, test *pixel.Buffer
		var eg errgroup.Group
		eg.Go(func() error {
			b, err := decodeFormFile(r, c, "baseline")
			if err != nil {
				return err
			}
			base = b
			return nil
		})
		eg.Go(func() error {
			b, err := decodeFormFile(r, c, "target")
			if err != nil {
				return err
			}
			test = b
			return nil
		})
		if err := eg.Wait(); err != nil {
			writeError(w, r, err)
			return
		}

		request.options.BaseImage = compare.Decoded{Buffer: base}
		request.options.TestImage = compare.Decoded{Buffer: test}
		outcome, err := comparer.PixelCompare(r.Context(), request.options)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeOutcome(w, r, outcome, c, request, pixelComparisons, "/compare")
	}
}

// LimitBody caps request bodies at n bytes. Zero or less disables the limit.
func LimitBody(n int64, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if n > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, n)
		}
		next(w, r)
	}
}

func parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

func parseCompareRequest(r *http.Request) (*compareRequest, error) {
	request := &compareRequest{
		format: codec.PNG,
	}

	if v := r.FormValue("format"); v != "" {
		f, err := codec.ParseFormat(v)
		if err != nil {
			return nil, err
		}
		request.format = f
	}

	for _, field := range []struct {
		name string
		dst  **pixel.Color
	}{
		{"baseColor", &request.options.BaseColor},
		{"testColor", &request.options.TestColor},
	} {
		v := r.FormValue(field.name)
		if v == "" {
			continue
		}
		color, err := pixel.ParseColor(v)
		if err != nil {
			return nil, xerrors.Errorf("invalid %s: %w", field.name, err)
		}
		*field.dst = &color
	}

	if v := r.FormValue("outputImage"); v != "" {
		if !strings.HasPrefix(v, "s3://") && !filepath.IsLocal(v) {
			return nil, xerrors.Errorf("%w: outputImage must be a relative path or an s3:// location", errBadRequest)
		}
		request.options.OutputImage = v
	}

	return request, nil
}

func decodeFormFile(r *http.Request, c Codec, name string) (*pixel.Buffer, error) {
	file, _, err := r.FormFile(name)
	if err != nil {
		return nil, xerrors.Errorf("missing %s: %w", name, errBadRequest)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", name, err)
	}

	b, err := c.DecodeBytes(data)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode %s: %w", name, err)
	}
	return b, nil
}

func writeOutcome(w http.ResponseWriter, r *http.Request, outcome compare.Outcome, c Codec, request *compareRequest, pixelComparisons metric.Int64Counter, handler string) {
	resolved, ok := outcome.(*compare.Resolved)
	if !ok {
		writeError(w, r, xerrors.Errorf("unexpected outcome %T", outcome))
		return
	}
	result := resolved.Result

	var buffer bytes.Buffer
	if err := c.EncodeTo(&buffer, result.Buffer(), request.format); err != nil {
		writeError(w, r, err)
		return
	}

	pixelComparisons.Add(r.Context(), 1, metric.WithAttributes(
		attribute.Key("handler").String(handler),
		attribute.Key("same").Bool(resolved.IsSame),
	))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(CompareResponse{
		IsSame:      resolved.IsSame,
		DiffAmount:  result.DiffAmount,
		Mismatched:  result.Mismatched,
		Regions:     result.Regions(diffimage.DefaultRegionMinSize, diffimage.DefaultRegionMergeDistance),
		DiffData:    base64.StdEncoding.EncodeToString(buffer.Bytes()),
		OutputImage: request.options.OutputImage,
	}); err != nil {
		myhttp.Logger(r.Context()).Error("failed to encode response", "error", err)
	}
}

func statusCode(err error) int {
	var decodeError *codec.DecodeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.Is(err, codec.ErrImageTooLarge), errors.As(err, &maxBytesError):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &decodeError),
		errors.Is(err, errBadRequest),
		errors.Is(err, diffimage.ErrDimensionMismatch),
		errors.Is(err, diffimage.ErrDepthMismatch),
		errors.Is(err, pixel.ErrUnsupportedDepth),
		errors.Is(err, pixel.ErrInvalidBuffer),
		errors.Is(err, compare.ErrUnsupportedOutputFormat),
		errors.Is(err, codec.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		myhttp.Logger(r.Context()).Error(fmt.Sprintf("failed to compare images: %s", err))
		http.Error(w, http.StatusText(code), code)
		return
	}
	myhttp.Logger(r.Context()).Debug("rejected compare request", "error", err)
	http.Error(w, err.Error(), code)
}
