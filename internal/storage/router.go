package storage

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

type RouterConfig struct {
	File       FileConfig
	S3         S3Config
	HTTPClient *http.Client
}

type router struct {
	file Storage
	http Storage
	s3   func() (Storage, error)
}

// NewRouter dispatches on the location scheme: s3:// to S3, http:// and
// https:// to a read-only HTTP backend, anything else to the filesystem.
// The S3 client is only configured on first use.
func NewRouter(ctx context.Context, c RouterConfig) (Storage, error) {
	file, err := NewFileStorage(ctx, c.File)
	if err != nil {
		return nil, err
	}

	return &router{
		file: file,
		http: NewHTTPStorage(c.HTTPClient),
		s3: sync.OnceValues(func() (Storage, error) {
			return NewS3Storage(context.WithoutCancel(ctx), c.S3)
		}),
	}, nil
}

func (r *router) Put(ctx context.Context, location string, data []byte) (string, error) {
	s, err := r.backend(location)
	if err != nil {
		return "", err
	}
	return s.Put(ctx, location, data)
}

func (r *router) Get(ctx context.Context, location string) ([]byte, error) {
	s, err := r.backend(location)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, location)
}

func (r *router) backend(location string) (Storage, error) {
	switch {
	case strings.HasPrefix(location, s3Scheme):
		return r.s3()
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return r.http, nil
	default:
		return r.file, nil
	}
}
