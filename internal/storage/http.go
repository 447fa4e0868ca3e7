package storage

import (
	"context"
	"io"
	"net/http"

	"golang.org/x/xerrors"
)

var ErrUnexpectedStatus = xerrors.New("unexpected HTTP status")

type httpStorage struct {
	client *http.Client
}

// NewHTTPStorage creates a read-only backend fetching http(s) locations.
func NewHTTPStorage(client *http.Client) Storage {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpStorage{
		client: client,
	}
}

func (h *httpStorage) Put(ctx context.Context, location string, data []byte) (string, error) {
	return "", xerrors.Errorf("%w: %s", ErrReadOnly, location)
}

func (h *httpStorage) Get(ctx context.Context, location string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to create request: %w", err)
	}

	response, err := h.client.Do(request)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch %s: %w", location, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, xerrors.Errorf("%w: %s returned %d", ErrUnexpectedStatus, location, response.StatusCode)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, xerrors.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
