package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3Client is the subset of *s3.Client the store uses.
type s3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures an S3Store.
type S3Options struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint points the client at an S3-compatible server such as MinIO.
	// Path-style addressing is used when it's set.
	Endpoint string

	// Static credentials. When empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3OptionsFromEnv reads ARENA_S3_ENDPOINT, ARENA_S3_ACCESS_KEY,
// ARENA_S3_SECRET_KEY and AWS_REGION.
func S3OptionsFromEnv() S3Options {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return S3Options{
		Region:          region,
		Endpoint:        os.Getenv("ARENA_S3_ENDPOINT"),
		AccessKeyID:     os.Getenv("ARENA_S3_ACCESS_KEY"),
		SecretAccessKey: os.Getenv("ARENA_S3_SECRET_KEY"),
	}
}

// S3Store keeps objects in one bucket.
type S3Store struct {
	client s3Client
	bucket string
	prefix string
}

// NewS3Store loads the AWS configuration and creates the client.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 store needs a bucket")
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(opts.Endpoint))
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, opts), nil
}

func newS3Store(client s3Client, opts S3Options) *S3Store {
	return &S3Store{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
	}
}

func (s *S3Store) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := objectKey(s.prefix, name)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to bucket %s: %w", key, s.bucket, err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *S3Store) Get(ctx context.Context, name string) ([]byte, error) {
	key := objectKey(s.prefix, name)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, key)
		}
		return nil, fmt.Errorf("downloading %s from bucket %s: %w", key, s.bucket, err)
	}
	defer out.Body.Close() //nolint:errcheck

	return io.ReadAll(out.Body)
}

// endpointURL adds a scheme to bare host:port endpoints.
func endpointURL(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "http://" + endpoint
}
