// Package storage persists run outcomes to a local directory, Azure Blob
// Storage or an S3-compatible bucket.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/spboyer/arena/internal/models"
)

// ErrNotFound is returned by Get when nothing is stored under the name.
var ErrNotFound = errors.New("object not found")

// Store saves and loads named objects.
type Store interface {
	// Put stores data under name and returns a location the object can be
	// read back from.
	Put(ctx context.Context, name string, data []byte) (string, error)
	Get(ctx context.Context, name string) ([]byte, error)
}

// Open returns the store for target:
//   - https://<account>.blob.core.windows.net/<container>[/prefix] - Azure Blob Storage
//   - s3://<bucket>[/prefix] - S3 or an S3-compatible endpoint (see S3OptionsFromEnv)
//   - file://<dir> or a plain directory path - the local filesystem
func Open(ctx context.Context, target string) (Store, error) {
	if strings.TrimSpace(target) == "" {
		return nil, errors.New("storage target is empty")
	}

	switch {
	case strings.HasPrefix(target, "s3://"):
		bucket, prefix, err := splitBucket(strings.TrimPrefix(target, "s3://"))
		if err != nil {
			return nil, err
		}
		opts := S3OptionsFromEnv()
		opts.Bucket = bucket
		opts.Prefix = prefix
		return NewS3Store(ctx, opts)

	case strings.HasPrefix(target, "https://"):
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parsing storage target: %w", err)
		}
		if !strings.HasSuffix(u.Host, ".blob.core.windows.net") {
			return nil, fmt.Errorf("unsupported storage target %q: https targets must be Azure Blob Storage URLs", target)
		}
		container, prefix, err := splitBucket(strings.TrimPrefix(u.Path, "/"))
		if err != nil {
			return nil, err
		}
		return NewAzureBlobStore(AzureOptions{
			ServiceURL: "https://" + u.Host + "/",
			Container:  container,
			Prefix:     prefix,
		})

	case strings.HasPrefix(target, "file://"):
		return NewFileStore(strings.TrimPrefix(target, "file://")), nil

	case strings.Contains(target, "://"):
		return nil, fmt.Errorf("unsupported storage target %q", target)

	default:
		return NewFileStore(target), nil
	}
}

// OutcomeName is the object name a run outcome is saved under.
func OutcomeName(outcome *models.RunOutcome) string {
	return fmt.Sprintf("arena-%s.json", outcome.RunID)
}

// SaveOutcome writes outcome as indented JSON and returns its location.
func SaveOutcome(ctx context.Context, s Store, outcome *models.RunOutcome) (string, error) {
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling outcome: %w", err)
	}
	return s.Put(ctx, OutcomeName(outcome), data)
}

// LoadOutcome reads an outcome saved by SaveOutcome.
func LoadOutcome(ctx context.Context, s Store, name string) (*models.RunOutcome, error) {
	data, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	var outcome models.RunOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, fmt.Errorf("decoding outcome %s: %w", name, err)
	}
	return &outcome, nil
}

// ReadOutcomeFile loads an outcome JSON file from disk.
func ReadOutcomeFile(p string) (*models.RunOutcome, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	var outcome models.RunOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, fmt.Errorf("decoding outcome %s: %w", p, err)
	}
	return &outcome, nil
}

// splitBucket splits "bucket/some/prefix" into its bucket and prefix.
func splitBucket(s string) (string, string, error) {
	bucket, prefix, _ := strings.Cut(strings.Trim(s, "/"), "/")
	if bucket == "" {
		return "", "", errors.New("storage target is missing a bucket or container name")
	}
	return bucket, prefix, nil
}

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
