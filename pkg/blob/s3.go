package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

type s3Store struct {
	client *s3.Client
	bucket string
}

func newS3Store(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Bucket == "" {
		return nil, tserrors.Config("blob_bucket_required", "s3 blob driver requires a bucket", nil)
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, tserrors.Config("blob_aws_config_failed", "load aws config", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})
	return &s3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *s3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key = sanitizeKey(key)
	input := &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = &contentType
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", tserrors.TransientIO("blob_write_failed", "put s3 object", err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

func (s *s3Store) key(location string) string {
	return strings.TrimPrefix(location, "s3://"+s.bucket+"/")
}

func (s *s3Store) GetReader(ctx context.Context, location string) (io.ReadCloser, error) {
	key := s.key(location)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, tserrors.NotFound("blob_not_found", "blob not found", err)
		}
		return nil, tserrors.TransientIO("blob_read_failed", "get s3 object", err)
	}
	return out.Body, nil
}

func (s *s3Store) Get(ctx context.Context, location string) ([]byte, error) {
	rc, err := s.GetReader(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, tserrors.TransientIO("blob_read_failed", "read s3 object body", err)
	}
	return data, nil
}

func (s *s3Store) Delete(ctx context.Context, location string) error {
	key := s.key(location)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return tserrors.TransientIO("blob_delete_failed", "delete s3 object", err)
	}
	return nil
}
