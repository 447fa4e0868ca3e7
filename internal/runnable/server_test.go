package runnable

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"pixel-compare/internal/storage"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestServer_Handler(t *testing.T) {
	t.Setenv("BASELINE_CACHE_SIZE", "4")
	t.Setenv("MAX_UPLOAD_BYTES", "2048")

	s, err := storage.NewFileStorage(context.Background(), storage.FileConfig{Directory: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	server := NewServer(s)
	if diff := cmp.Diff(4, server.baselineCacheSize); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(2048), server.maxUploadBytes); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	meter := noop.NewMeterProvider().Meter("test")
	histogram, err := meter.Int64Histogram("http_requests_duration_micro_seconds")
	if err != nil {
		t.Fatal(err)
	}
	counter, err := meter.Int64Counter("pixel_comparisons")
	if err != nil {
		t.Fatal(err)
	}
	handler := server.Handler(slog.New(slog.NewTextHandler(io.Discard, nil)), histogram, counter)

	for i, tt := range []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/compare", http.StatusMethodNotAllowed},
		{http.MethodPost, "/compare", http.StatusBadRequest},
		{http.MethodPost, "/compare", http.StatusRequestEntityTooLarge},
		{http.MethodPost, "/baselines/missing/compare", http.StatusNotFound},
		{http.MethodGet, "/debug/pprof/", http.StatusNotFound},
	} {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(tt.method, tt.target, nil)
		if tt.want == http.StatusRequestEntityTooLarge {
			request = httptest.NewRequest(tt.method, tt.target, strings.NewReader(strings.Repeat("x", 4096)))
			request.Header.Set("Content-Type", "multipart/form-data; boundary=limit")
		}
		handler.ServeHTTP(recorder, request)
		if diff := cmp.Diff(tt.want, recorder.Code); diff != "" {
			t.Errorf("#%d %s %s (-want +got):\n%s", i, tt.method, tt.target, diff)
		}
	}
}
