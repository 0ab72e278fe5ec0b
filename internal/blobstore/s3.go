package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store uploads video blobs to S3, adapted from the teacher's
// internal/cache/s3.go (same LoadDefaultConfig/NewFromConfig wiring,
// same forcePathStyle knob) but stripped of the read path, the
// meta-sidecar object, and the lifecycle/presign logic that package
// needed for OCI blob serving and this one does not.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store opens an S3 client via the SDK's default credential chain,
// exactly as the teacher's NewS3Store does.
func NewS3Store(ctx context.Context, bucket, prefix string, forcePathStyle bool) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("blobstore: loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = forcePathStyle
	})
	if prefix != "" {
		prefix = strings.TrimSuffix(prefix, "/") + "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3Store) fullKey(key string) string {
	return s.prefix + key
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (Location, error) {
	fullKey := s.fullKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fullKey),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Location{}, fmt.Errorf("blobstore: putting video blob to S3: %w", err)
	}
	return Location{Bucket: s.bucket, Key: fullKey}, nil
}
