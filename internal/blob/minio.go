package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/0x0BSoD/turfoo/internal/resource"
)

var ErrNotConnected = errors.New("blob store is not connected")

var (
	_ resource.Connectable     = (*S3)(nil)
	_ resource.HealthCheckable = (*S3)(nil)
	_ resource.Storable        = (*S3)(nil)
	_ resource.Listable        = (*S3)(nil)
	_ resource.Deletable       = (*S3)(nil)
)

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
}

// S3 stores blobs in an S3-compatible bucket.
type S3 struct {
	cfg S3Config

	mu     sync.RWMutex
	client *minio.Client
}

func NewS3(cfg S3Config) *S3 {
	return &S3{cfg: cfg}
}

// Connect builds the client and makes sure the bucket exists, creating it on
// first use.
func (s *S3) Connect(ctx context.Context) error {
	host, secure, err := splitEndpoint(s.cfg.Endpoint)
	if err != nil {
		return &resource.ConnectionError{Resource: "s3", Addr: s.cfg.Endpoint, Err: err}
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: s.cfg.Region,
	})
	if err != nil {
		return &resource.ConnectionError{Resource: "s3", Addr: s.cfg.Endpoint, Err: err}
	}

	exists, err := client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return &resource.ConnectionError{Resource: "s3", Addr: s.cfg.Endpoint, Err: err}
	}
	if !exists {
		if err := client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return &resource.ConnectionError{Resource: "s3", Addr: s.cfg.Endpoint, Err: fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)}
		}
		slog.Info("created bucket", "bucket", s.cfg.Bucket)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	return nil
}

// Disconnect drops the client. The minio client holds no long-lived
// connection of its own beyond the shared HTTP transport.
func (s *S3) Disconnect() {
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
}

func (s *S3) Healthy(ctx context.Context) bool {
	client, err := s.conn()
	if err != nil {
		return false
	}
	ok, err := client.BucketExists(ctx, s.cfg.Bucket)
	return err == nil && ok
}

func (s *S3) Store(ctx context.Context, key string, data []byte) error {
	client, err := s.conn()
	if err != nil {
		return err
	}

	_, err = client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *S3) Load(ctx context.Context, key string) ([]byte, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}

	obj, err := client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrap(key, err)
	}
	return data, nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	client, err := s.conn()
	if err != nil {
		return false, err
	}

	_, err = client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", key, err)
}

func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}

	var keys []string
	for obj := range client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	client, err := s.conn()
	if err != nil {
		return err
	}

	if err := client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *S3) conn() (*minio.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

func (s *S3) wrap(key string, err error) error {
	if isNoSuchKey(err) {
		return &resource.NotFoundError{Key: key}
	}
	return fmt.Errorf("get %s: %w", key, err)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// splitEndpoint accepts either a URL ("https://s3.example.com") or a bare
// host:port and returns the host:port minio expects.
func splitEndpoint(endpoint string) (string, bool, error) {
	if endpoint == "" {
		return "", false, errors.New("empty endpoint")
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint, false, nil
	}

	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	}
	return "", false, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
}
