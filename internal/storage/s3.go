package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/xerrors"
)

const s3Scheme = "s3://"

var ErrInvalidS3Location = xerrors.New("invalid s3 location")

type s3Storage struct {
	client *s3.Client
}

type S3Config struct {
	// EndpointURL overrides the resolved endpoint, e.g. for MinIO.
	EndpointURL string
}

func NewS3Storage(ctx context.Context, s S3Config) (Storage, error) {
	var optsFunc []func(*config.LoadOptions) error

	endpointURL := s.EndpointURL
	if endpointURL == "" {
		endpointURL = os.Getenv("S3_ENDPOINT_URL")
	}
	if endpointURL != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               endpointURL,
				HostnameImmutable: true,
			}, nil
		})
		optsFunc = append(optsFunc, config.WithEndpointResolverWithOptions(resolver))
	}

	c, err := config.LoadDefaultConfig(ctx, optsFunc...)
	if err != nil {
		return nil, xerrors.Errorf("failed to load AWS config: %w", err)
	}
	s3Client := s3.NewFromConfig(c, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &s3Storage{
		client: s3Client,
	}, nil
}

func (s *s3Storage) Put(ctx context.Context, location string, data []byte) (string, error) {
	bucket, key, err := parseS3Location(location)
	if err != nil {
		return "", err
	}

	contentType := http.DetectContentType(data)

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", xerrors.Errorf("failed to upload to S3: %w", err)
	}

	return fmt.Sprintf("%s%s/%s", s3Scheme, bucket, key), nil
}

func (s *s3Storage) Get(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := parseS3Location(location)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	var buffer bytes.Buffer
	_, err = buffer.ReadFrom(result.Body)
	if err != nil {
		return nil, xerrors.Errorf("failed to read S3 object: %w", err)
	}

	return buffer.Bytes(), nil
}

// parseS3Location splits s3://bucket/key.
func parseS3Location(location string) (string, string, error) {
	rest, ok := strings.CutPrefix(location, s3Scheme)
	if !ok {
		return "", "", xerrors.Errorf("%w: %s", ErrInvalidS3Location, location)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", xerrors.Errorf("%w: %s", ErrInvalidS3Location, location)
	}
	return bucket, key, nil
}
