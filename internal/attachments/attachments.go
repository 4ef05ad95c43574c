// Package attachments uploads request attachments to S3-compatible storage.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"leadflow/internal/store"
	"leadflow/internal/util"
)

var (
	ErrEmpty    = errors.New("attachment is empty")
	ErrTooLarge = errors.New("attachment exceeds size limit")
)

const DefaultMaxBytes = 10 << 20

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
	MaxBytes  int64
}

type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Store struct {
	objects    objectStore
	bucket     string
	publicBase string
	maxBytes   int64
	now        func() time.Time
}

// NewMinio connects to the object store and makes sure the bucket exists.
func NewMinio(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	publicBase := cfg.PublicURL
	if publicBase == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBase = scheme + "://" + cfg.Endpoint
	}
	return newStore(client, cfg.Bucket, publicBase, cfg.MaxBytes), nil
}

func newStore(objects objectStore, bucket, publicBase string, maxBytes int64) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{
		objects:    objects,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		maxBytes:   maxBytes,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores one attachment and returns the reference to record on the
// request. Nothing is returned on failure.
func (s *Store) Upload(ctx context.Context, clientID, name string, size int64, body io.Reader) (store.Attachment, error) {
	if size <= 0 {
		return store.Attachment{}, ErrEmpty
	}
	if size > s.maxBytes {
		return store.Attachment{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, size, s.maxBytes)
	}

	safeName := SanitizeName(name)
	key := ObjectKey(clientID, safeName, s.now())
	contentType := mime.TypeByExtension(filepath.Ext(safeName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.objects.PutObject(ctx, s.bucket, key, io.LimitReader(body, size), size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return store.Attachment{}, fmt.Errorf("put object %s: %w", key, err)
	}
	if info.Size != size {
		return store.Attachment{}, fmt.Errorf("put object %s: wrote %d of %d bytes", key, info.Size, size)
	}

	return store.Attachment{
		URL:  s.publicBase + "/" + s.bucket + "/" + key,
		Name: safeName,
		Size: size,
	}, nil
}

// ObjectKey groups uploads by client and month, e.g.
// clients/cl_1/2026-10/<id>-logo.png.
func ObjectKey(clientID, safeName string, now time.Time) string {
	return path.Join("clients", SanitizeName(clientID), now.UTC().Format("2006-01"), util.NewID("")+"-"+safeName)
}

// SanitizeName keeps letters, digits, dots, dashes and underscores.
func SanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), ".-")
	if cleaned == "" {
		return "file"
	}
	if len(cleaned) > 120 {
		cleaned = cleaned[len(cleaned)-120:]
	}
	return cleaned
}
