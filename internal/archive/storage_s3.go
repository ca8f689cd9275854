package archive

import (
	"context"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tickerpay/internal/logging"
)

// ObjectClient is the part of the minio client the archive uses.
type ObjectClient interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
}

type minioClient struct {
	*minio.Client
}

func (c minioClient) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := c.Client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// S3Config holds configuration for S3-compatible archive storage.
type S3Config struct {
	Endpoint  string // S3_ENDPOINT
	AccessKey string // S3_ACCESS_KEY
	SecretKey string // S3_SECRET_KEY
	Bucket    string // S3_BUCKET
	Prefix    string // S3_PREFIX - optional folder prefix for all objects
	Secure    bool   // S3_SECURE
}

// S3Storage implements Storage on any S3-compatible object store.
type S3Storage struct {
	client ObjectClient
	bucket string
	prefix string
}

// NewS3Storage creates S3-backed archive storage.
func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	logging.Archive.Info().Str("bucket", cfg.Bucket).Str("prefix", cfg.Prefix).Str("endpoint", cfg.Endpoint).Msg("initializing object storage")

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		logging.Archive.Error().Err(err).Msg("failed to create object storage client")
		return nil, err
	}
	return NewS3StorageWithClient(minioClient{client}, cfg.Bucket, cfg.Prefix), nil
}

// NewS3StorageWithClient creates S3-backed storage over an existing client.
func NewS3StorageWithClient(client ObjectClient, bucket, prefix string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Storage) key(key string) string {
	name := key + ".json"
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *S3Storage) Save(ctx context.Context, key string, data io.Reader, size int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	object := s.key(key)

	info, err := s.client.PutObject(ctx, s.bucket, object, data, size, minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		logging.Archive.Error().Err(err).Str("object", object).Msg("upload failed")
		return 0, err
	}

	logging.Archive.Debug().Str("object", object).Int64("bytes", info.Size).Msg("uploaded")
	return info.Size, nil
}

func (s *S3Storage) Load(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	object := s.key(key)

	if _, err := s.client.StatObject(ctx, s.bucket, object, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		logging.Archive.Error().Err(err).Str("object", object).Msg("stat failed")
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		logging.Archive.Error().Err(err).Str("object", object).Msg("download failed")
		return nil, err
	}
	return obj, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	object := s.key(key)

	if err := s.client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return ErrNotFound
		}
		logging.Archive.Error().Err(err).Str("object", object).Msg("delete failed")
		return err
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
