// Package source loads statement files from the local filesystem or from
// Google Cloud Storage. Access is read only.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/just-save/internal/domain"
)

// Statement is a loaded statement file.
type Statement struct {
	Name string // file name without directories
	Kind domain.SourceKind
	Data []byte
}

// ObjectReader opens an object in a bucket.
type ObjectReader interface {
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// GCSReader reads objects with a Cloud Storage client.
type GCSReader struct {
	client *storage.Client
}

// NewGCSReader creates a GCSReader using Application Default Credentials.
func NewGCSReader(ctx context.Context) (*GCSReader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSReader: create storage client: %w", err)
	}
	return &GCSReader{client: client}, nil
}

// NewReader opens bucket/object for reading.
func (r *GCSReader) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	rc, err := r.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSReader.NewReader: reading object %s/%s: %w", bucket, object, err)
	}
	return rc, nil
}

// Close releases the storage client.
func (r *GCSReader) Close() error {
	return r.client.Close()
}

// Loader reads statements from local paths and gs:// URIs.
type Loader struct {
	objects ObjectReader
	limits  func(domain.SourceKind) int64
}

// NewLoader creates a Loader. objects may be nil, in which case gs:// URIs are
// rejected. maxBytes returns the size ceiling for a kind.
func NewLoader(objects ObjectReader, maxBytes func(domain.SourceKind) int64) *Loader {
	return &Loader{objects: objects, limits: maxBytes}
}

// Load reads the statement at location, which is either a filesystem path or
// gs://bucket/path/to/file. The kind is taken from the file extension.
func (l *Loader) Load(ctx context.Context, location string) (*Statement, error) {
	name := filepath.Base(location)
	if IsGCSURI(location) {
		name = FilenameFromURI(location)
	}

	kind, err := domain.ParseSourceKind(path.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("Load: %s: %w", name, err)
	}

	var rc io.ReadCloser
	if IsGCSURI(location) {
		if l.objects == nil {
			return nil, fmt.Errorf("Load: no storage client for %s: %w", location, domain.ErrUnsupportedSource)
		}
		bucket, object, err := ParseGCSURI(location)
		if err != nil {
			return nil, err
		}
		rc, err = l.objects.NewReader(ctx, bucket, object)
		if err != nil {
			return nil, fmt.Errorf("Load: %w", err)
		}
	} else {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("Load: open file %q: %w", location, err)
		}
		rc = f
	}
	defer rc.Close()

	data, err := readLimited(rc, l.maxBytes(kind))
	if err != nil {
		return nil, fmt.Errorf("Load: %s: %w", name, err)
	}

	return &Statement{Name: name, Kind: kind, Data: data}, nil
}

func (l *Loader) maxBytes(kind domain.SourceKind) int64 {
	if l.limits == nil {
		return 0
	}
	return l.limits(kind)
}

// readLimited reads all of r, failing with ErrFileTooLarge once more than max
// bytes have been seen. max <= 0 means no limit.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("reading bytes: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("more than %d bytes: %w", max, domain.ErrFileTooLarge)
	}
	return data, nil
}

// IsGCSURI reports whether s looks like gs://bucket/object.
func IsGCSURI(s string) bool {
	return strings.HasPrefix(s, "gs://")
}

// ParseGCSURI splits gs://bucket/path/to/file into bucket and object path.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCSURI(uri) {
		return "", "", fmt.Errorf("ParseGCSURI: invalid GCS URI: %s", uri)
	}

	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("ParseGCSURI: invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
