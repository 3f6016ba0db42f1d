package retrieval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectAPI is the subset of the S3 client used by S3Storage.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Storage keeps the index and metadata as two objects under a key prefix.
type S3Storage struct {
	client ObjectAPI
	bucket string
	prefix string
}

// NewS3Storage loads AWS config from the environment for region.
func NewS3Storage(ctx context.Context, bucket, prefix, region string) (*S3Storage, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3StorageWithClient(s3.NewFromConfig(awsCfg), bucket, prefix), nil
}

// NewS3StorageWithClient uses an existing client.
func NewS3StorageWithClient(client ObjectAPI, bucket, prefix string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Storage) indexKey() string    { return path.Join(s.prefix, "index.bin") }
func (s *S3Storage) metadataKey() string { return path.Join(s.prefix, "metadata.json") }

func (s *S3Storage) Save(ctx context.Context, ix *Indexer, meta []Metadata) error {
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.indexKey()),
		Body:        bytes.NewReader(encodeIndex(ix)),
		ContentType: aws.String("application/octet-stream"),
	}); err != nil {
		return fmt.Errorf("upload index: %w", err)
	}

	data, err := marshalMetadata(meta)
	if err != nil {
		return err
	}
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.metadataKey()),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("upload metadata: %w", err)
	}
	return nil
}

// Load downloads both objects. A missing metadata object yields an empty list.
func (s *S3Storage) Load(ctx context.Context) (*Indexer, []Metadata, error) {
	raw, err := s.get(ctx, s.indexKey())
	if err != nil {
		return nil, nil, fmt.Errorf("download index: %w", err)
	}
	ix, err := decodeIndex(raw)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.get(ctx, s.metadataKey())
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return ix, []Metadata{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("download metadata: %w", err)
	}
	meta, err := unmarshalMetadata(data)
	if err != nil {
		return nil, nil, err
	}
	return ix, meta, nil
}

func (s *S3Storage) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
