package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string `validate:"required"`
	Region    string
	AccessKey string `validate:"required"`
	SecretKey string `validate:"required"`
	Bucket    string `validate:"required"`
	// Prefix is prepended to every object key, e.g. "exports".
	Prefix string
	UseSSL bool
}

var validate = validator.New()

// S3Store keeps exports in an S3-compatible bucket as [<prefix>/]<exportID>/<path> objects.
type S3Store struct {
	client *minio.Client
	bucket string
	region string
	prefix string

	// the bucket check is retried until it succeeds once
	bucketMu    sync.Mutex
	bucketReady bool
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("s3 export config: %w", err)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		region: region,
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
	}, nil
}

func (s *S3Store) ready(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketReady {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	s.bucketReady = true
	return nil
}

func (s *S3Store) key(exportID, p string) string {
	if s.prefix == "" {
		return objectKey(exportID, p)
	}
	return path.Join(s.prefix, objectKey(exportID, p))
}

func (s *S3Store) Put(ctx context.Context, exportID, p string, content []byte) error {
	exportID, p, err := normalizeKey(exportID, p)
	if err != nil {
		return err
	}
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.key(exportID, p), bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: contentType(p)})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", exportID, p, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, exportID, p string) ([]byte, error) {
	exportID, p, err := normalizeKey(exportID, p)
	if err != nil {
		return nil, err
	}
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(exportID, p), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *S3Store) List(ctx context.Context, exportID string) ([]string, error) {
	exportID, err := normalizeID(exportID)
	if err != nil {
		return nil, err
	}
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	prefix := exportID + "/"
	if s.prefix != "" {
		prefix = s.prefix + "/" + prefix
	}
	var paths []string
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if rel := strings.TrimPrefix(obj.Key, prefix); rel != "" {
			paths = append(paths, rel)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func notFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}

func contentType(p string) string {
	if strings.EqualFold(path.Ext(p), ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
