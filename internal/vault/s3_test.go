package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"repute-go/internal/config"
)

// fakeS3 keeps objects of a single bucket in memory. ListObjectsV2 returns
// at most pageSize keys per call so pagination is exercised.
type fakeS3 struct {
	mu       sync.Mutex
	bucket   string
	objects  map[string][]byte
	pageSize int
}

func newFakeS3Vault(prefix string) *S3Vault {
	f := &fakeS3{bucket: "snapshots", objects: make(map[string][]byte), pageSize: 1}
	return newS3Vault("test-s3", f.bucket, prefix, f, f)
}

func (f *fakeS3) checkBucket(b *string) error {
	if aws.ToString(b) != f.bucket {
		return &types.NoSuchBucket{}
	}
	return nil
}

func (f *fakeS3) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if in.ContentLength != nil && int64(len(data)) != *in.ContentLength {
		return nil, fmt.Errorf("content length mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &manager.UploadOutput{Key: in.Key}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k])))})
	}
	return out, nil
}

func TestS3Vault_KeyLayout(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "node-1/a.snap"},
		{"prod", "prod/node-1/a.snap"},
		{"prod/", "prod/node-1/a.snap"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			v := newFakeS3Vault(tt.prefix)
			if err := v.Put("node-1", "a.snap", strings.NewReader("x"), 1); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			f := v.client.(*fakeS3)
			if _, ok := f.objects[tt.want]; !ok {
				t.Errorf("object keys = %v, want %q", f.objects, tt.want)
			}
		})
	}
}

func TestS3Vault_ListSkipsNestedKeys(t *testing.T) {
	v := newFakeS3Vault("")
	f := v.client.(*fakeS3)
	f.objects["node-1/a.snap"] = []byte("a")
	f.objects["node-1/archive/old.snap"] = []byte("old")

	entries, err := v.List("node-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "a.snap" {
		t.Errorf("List() = %v, want only a.snap", entries)
	}
}

func TestNewS3Vault(t *testing.T) {
	t.Run("requires bucket", func(t *testing.T) {
		if _, err := NewS3Vault(context.Background(), config.VaultConfig{Type: "s3", Name: "s3"}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("static credentials and custom endpoint", func(t *testing.T) {
		v, err := NewS3Vault(context.Background(), config.VaultConfig{
			Type:              "s3",
			Name:              "minio",
			S3Bucket:          "ledger",
			S3Prefix:          "repute",
			S3Region:          "us-east-1",
			S3Endpoint:        "http://127.0.0.1:9000",
			S3AccessKeyID:     "minioadmin",
			S3SecretAccessKey: "minioadmin",
		})
		if err != nil {
			t.Fatalf("NewS3Vault() error = %v", err)
		}
		if v.bucket != "ledger" || v.prefix != "repute/" {
			t.Errorf("bucket = %q, prefix = %q", v.bucket, v.prefix)
		}
	})
}
