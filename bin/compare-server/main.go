package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"pixel-compare/internal/codec"
	"pixel-compare/internal/config"
	"pixel-compare/internal/retry"
	"pixel-compare/internal/runnable"
	"pixel-compare/internal/storage"
	"time"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load environment: %v", err)
	}

	flag.BoolVar(&runnable.Debug, "debug", config.EnvOrDefaultValue("DEBUG", false), "Enable pprof handlers and human readable logs")
	flag.Parse()

	ctx := context.Background()

	retryOn := retry.NewDefaultRetryOn()
	if v := config.EnvOrDefaultValue("HTTP_RETRY_ON", ""); v != "" {
		o, err := retry.NewRetryOnFromString(v)
		if err != nil {
			log.Fatalf("Failed to parse HTTP_RETRY_ON: %v", err)
		}
		retryOn = o
	}

	s, err := storage.NewRouter(ctx, storage.RouterConfig{
		File: storage.FileConfig{
			Directory: config.EnvOrDefaultValue("DIRECTORY", "/tmp"),
		},
		S3: storage.S3Config{
			EndpointURL: config.EnvOrDefaultValue("S3_ENDPOINT_URL", ""),
		},
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &retry.Transport{
				Base:          http.DefaultTransport,
				RetryStrategy: retry.NewExponentialBackOff(10*time.Millisecond, 1*time.Second, config.EnvOrDefaultValue("HTTP_RETRY_MAX", uint(3)), nil),
				RetryOn:       retryOn,
			},
		},
	})
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}

	server := runnable.NewServer(s,
		codec.WithJPEGQuality(config.EnvOrDefaultValue("JPEG_QUALITY", 95)),
		codec.WithAutoOrientation(config.EnvOrDefaultValue("AUTO_ORIENT", false)),
	)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
