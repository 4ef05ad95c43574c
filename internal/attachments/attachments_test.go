package attachments

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
)

type fakeObjects struct {
	putFn func(context.Context, string, string, io.Reader, int64, minio.PutObjectOptions) (minio.UploadInfo, error)
}

func (f *fakeObjects) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return f.putFn(ctx, bucket, key, r, size, opts)
}

func TestUploadReturnsReference(t *testing.T) {
	var gotBucket, gotKey, gotBody, gotType string
	objects := &fakeObjects{putFn: func(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
		body, _ := io.ReadAll(r)
		gotBucket, gotKey, gotBody, gotType = bucket, key, string(body), opts.ContentType
		return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
	}}
	s := newStore(objects, "attachments", "https://files.example.com/", 0)
	s.now = func() time.Time { return time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC) }

	ref, err := s.Upload(context.Background(), "cl_1", "My Logo.png", 5, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if gotBucket != "attachments" || gotBody != "hello" || gotType != "image/png" {
		t.Fatalf("unexpected put: bucket=%s body=%s type=%s", gotBucket, gotBody, gotType)
	}
	if !strings.HasPrefix(gotKey, "clients/cl_1/2026-10/") || !strings.HasSuffix(gotKey, "-My-Logo.png") {
		t.Fatalf("unexpected key %s", gotKey)
	}
	if ref.URL != "https://files.example.com/attachments/"+gotKey || ref.Name != "My-Logo.png" || ref.Size != 5 {
		t.Fatalf("unexpected reference %+v", ref)
	}
}

func TestUploadRejectsBeforeWriting(t *testing.T) {
	called := false
	objects := &fakeObjects{putFn: func(context.Context, string, string, io.Reader, int64, minio.PutObjectOptions) (minio.UploadInfo, error) {
		called = true
		return minio.UploadInfo{}, nil
	}}
	s := newStore(objects, "b", "http://localhost:9000", 4)

	if _, err := s.Upload(context.Background(), "cl_1", "a.txt", 0, strings.NewReader("")); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := s.Upload(context.Background(), "cl_1", "a.txt", 5, strings.NewReader("hello")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if called {
		t.Fatal("object store should not be called")
	}
}

func TestUploadPropagatesStoreFailure(t *testing.T) {
	objects := &fakeObjects{putFn: func(context.Context, string, string, io.Reader, int64, minio.PutObjectOptions) (minio.UploadInfo, error) {
		return minio.UploadInfo{}, errors.New("connection reset")
	}}
	s := newStore(objects, "b", "http://localhost:9000", 0)

	ref, err := s.Upload(context.Background(), "cl_1", "a.txt", 3, strings.NewReader("abc"))
	if err == nil {
		t.Fatal("expected error")
	}
	if ref.URL != "" {
		t.Fatalf("no reference should be returned on failure, got %+v", ref)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "logo.png", want: "logo.png"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: `C:\Users\me\brief final.pdf`, want: "brief-final.pdf"},
		{in: "  ", want: "file"},
		{in: "résumé.doc", want: "rsum.doc"},
		{in: "...", want: "file"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeName(tt.in); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
