package storage

import (
	"context"

	"golang.org/x/xerrors"
)

var ErrReadOnly = xerrors.New("storage backend is read-only")

type Storage interface {
	// Put stores data at the given location and returns the resolved location
	Put(ctx context.Context, location string, data []byte) (string, error)
	// Get retrieves data from the given location
	Get(ctx context.Context, location string) ([]byte, error)
}
