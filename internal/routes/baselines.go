package routes

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"pixel-compare/internal/compare"
	"pixel-compare/internal/myhttp"
	"pixel-compare/internal/pixel"
	"sync"

	"github.com/golang/groupcache/lru"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/xerrors"
)

// Baselines keeps the most recently used bound baselines in memory.
type Baselines struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func NewBaselines(size int) *Baselines {
	return &Baselines{
		cache: lru.New(size),
	}
}

func (b *Baselines) Add(id string, bound *compare.Bound) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Add(id, bound)
}

func (b *Baselines) Get(id string) (*compare.Bound, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*compare.Bound), true
}

func (b *Baselines) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Len()
}

type BaselineResponse struct {
	ID string `json:"id"`
}

// baselineID identifies a baseline by its bytes and the options bound with
// it, so registrations with different options never replace each other.
func baselineID(data []byte, opts compare.Options) string {
	h := sha256.New()
	h.Write(data)
	for _, c := range []*pixel.Color{opts.BaseColor, opts.TestColor} {
		h.Write([]byte{0})
		if c != nil {
			h.Write([]byte(c.String()))
		}
	}
	h.Write([]byte{0})
	h.Write([]byte(opts.OutputImage))
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func RegisterBaseline(comparer *compare.Comparer, c Codec, baselines *Baselines) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseForm(w, r) {
			return
		}

		request, err := parseCompareRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if request.options.OutputImage != "" {
			if _, err := compare.OutputFormat(request.options.OutputImage); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		file, _, err := r.FormFile("baseline")
		if err != nil {
			http.Error(w, "missing baseline", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, xerrors.Errorf("failed to read baseline: %w", err))
			return
		}

		base, err := c.DecodeBytes(data)
		if err != nil {
			writeError(w, r, err)
			return
		}

		request.options.BaseImage = compare.Decoded{Buffer: base}
		outcome, err := comparer.PixelCompare(r.Context(), request.options)
		if err != nil {
			writeError(w, r, err)
			return
		}
		deferred, ok := outcome.(*compare.Deferred)
		if !ok {
			writeError(w, r, xerrors.Errorf("unexpected outcome %T", outcome))
			return
		}

		id := baselineID(data, request.options)
		baselines.Add(id, deferred.Bound)
		myhttp.Logger(r.Context()).Info("registered baseline", "id", id, "width", base.Width, "height", base.Height)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(BaselineResponse{ID: id}); err != nil {
			myhttp.Logger(r.Context()).Error("failed to encode response", "error", err)
		}
	}
}

func CompareBaseline(c Codec, baselines *Baselines, pixelComparisons metric.Int64Counter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bound, ok := baselines.Get(r.PathValue("id"))
		if !ok {
			http.NotFound(w, r)
			return
		}

		if !parseForm(w, r) {
			return
		}

		request, err := parseCompareRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		test, err := decodeFormFile(r, c, "target")
		if err != nil {
			writeError(w, r, err)
			return
		}

		request.options.TestImage = compare.Decoded{Buffer: test}
		outcome, err := bound.Compare(r.Context(), request.options)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeOutcome(w, r, outcome, c, request, pixelComparisons, "/baselines/{id}/compare")
	}
}
