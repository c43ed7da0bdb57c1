// Package archive persists raw article records as JSON objects in
// S3-compatible storage, keyed by publish date and source.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"newsragnarok/internal/config"
	"newsragnarok/internal/models"
	"newsragnarok/internal/timeutil"
)

const maxSlugLen = 200

// Archiver writes article records to an object store bucket. A nil
// Archiver is valid and drops every write, so callers can wire it
// unconditionally and let configuration decide.
type Archiver struct {
	client *minio.Client
	bucket string
}

// New creates an Archiver from configuration. Returns nil when archiving
// is disabled.
func New(cfg config.Archive) (*Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv(cfg.AccessKeyEnv), os.Getenv(cfg.SecretKeyEnv), ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	return &Archiver{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	if a == nil {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket: %w", err)
	}
	return nil
}

// Put stores one record under a date-partitioned key. Records are
// write-once: when the key already exists the earlier object stands.
func (a *Archiver) Put(ctx context.Context, record models.ArchiveRecord) (string, error) {
	if a == nil {
		return "", nil
	}
	key := ObjectKey(record)

	if _, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{}); err == nil {
		return key, nil
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling record: %w", err)
	}

	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}
	return key, nil
}

// Get fetches one archived record by key.
func (a *Archiver) Get(ctx context.Context, key string) (models.ArchiveRecord, error) {
	var record models.ArchiveRecord
	if a == nil {
		return record, fmt.Errorf("archive disabled")
	}
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return record, fmt.Errorf("fetching %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return record, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("decoding %s: %w", key, err)
	}
	return record, nil
}

// List returns the object keys under a prefix, e.g. "2026/08/30/".
func (a *Archiver) List(ctx context.Context, prefix string) ([]string, error) {
	if a == nil {
		return nil, nil
	}
	var keys []string
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Enabled reports whether writes actually reach a bucket.
func (a *Archiver) Enabled() bool { return a != nil }

// ObjectKey builds the date-partitioned object key for a record:
// YYYY/MM/DD/<source>-<title-slug>.json in the canonical timezone.
func ObjectKey(record models.ArchiveRecord) string {
	ts := record.PublishedAt
	if ts.IsZero() {
		ts = timeutil.Now()
	}
	ts = timeutil.Canonical(ts)
	return fmt.Sprintf("%04d/%02d/%02d/%s-%s.json",
		ts.Year(), int(ts.Month()), ts.Day(), Slug(record.Source), Slug(record.Title))
}

// Slug reduces a string to a filename-safe form: letters, digits and
// dashes, truncated so keys stay well under object-name limits.
func Slug(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "untitled"
	}
	return out
}
