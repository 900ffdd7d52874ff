package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

const uriScheme = "gs://"

// ParseURI splits gs://bucket/prefix. The prefix may be empty.
func ParseURI(uri string) (bucket, prefix string, err error) {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, uriScheme) {
		return "", "", fmt.Errorf("not a gs:// uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, uriScheme)
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("gs uri missing bucket: %q", uri)
	}
	return bucket, prefix, nil
}

func IsURI(s string) bool { return strings.HasPrefix(strings.TrimSpace(s), uriScheme) }

// ObjectSource reads corpus documents out of a bucket.
type ObjectSource struct {
	log    *logger.Logger
	client *storage.Client
}

func NewObjectSource(ctx context.Context, log *logger.Logger, cfg StorageConfig) (*ObjectSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []option.ClientOption
	switch cfg.Mode {
	case StorageModeGCSEmulator:
		// The storage client reads the emulator endpoint from the environment.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(cfg.EmulatorHost, "/"))
		opts = append(opts, option.WithoutAuthentication())
	default:
		opts = append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadOnly))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	log = log.With("service", "ObjectSource")
	log.Info("Object storage initialized", "mode", cfg.Mode, "emulator_host", cfg.EmulatorHost)
	return &ObjectSource{log: log, client: client}, nil
}

func (s *ObjectSource) Close() error { return s.client.Close() }

// List returns object keys under prefix in lexical order, skipping folder placeholders.
func (s *ObjectSource) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
		}
		if attrs.Name == "" || strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		keys = append(keys, attrs.Name)
	}
	sort.Strings(keys)
	return keys, nil
}

// ReadAll downloads one object fully; PDFs need random access so streaming is not offered.
func (s *ObjectSource) ReadAll(ctx context.Context, bucket, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}
