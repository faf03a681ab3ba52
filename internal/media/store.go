// Package media stores user images in S3-compatible object storage. Uploads
// go through the aws-sdk-go-v2 client; reads are streamed through minio-go,
// which handles range requests.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/clipshare/backend/internal/config"
)

// UploadResult references a durably stored object.
type UploadResult struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Store is the upload collaborator: it consumes a local temporary file and
// either returns a durable reference or removes the file and fails. Callers
// treat a failure as "no asset".
type Store interface {
	Upload(ctx context.Context, localPath, contentType string) (*UploadResult, error)
}

// S3Store implements Store against AWS S3 or MinIO.
type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewS3Store creates an S3Store from service configuration.
func NewS3Store(cfg *config.Config) (*S3Store, error) {
	opts := s3.Options{
		Region:       cfg.S3Region,
		Credentials:  awscreds.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		UsePathStyle: cfg.S3UsePathStyle, // Required for MinIO
	}

	if cfg.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.S3Endpoint)
	}

	return &S3Store{
		client:  s3.New(opts),
		bucket:  cfg.S3Bucket,
		baseURL: strings.TrimSuffix(cfg.MediaBaseURL, "/"),
	}, nil
}

// Upload pushes the local file to object storage under a fresh key and
// removes the local temporary file whether or not the upload succeeds.
func (s *S3Store) Upload(ctx context.Context, localPath, contentType string) (*UploadResult, error) {
	defer os.Remove(localPath)

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat upload: %w", err)
	}

	key := objectKey(localPath)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(fileInfo.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	return &UploadResult{
		Key: key,
		URL: s.baseURL + "/" + key,
	}, nil
}

// Delete removes a stored object.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// objectKey derives a unique storage key, keeping the original extension so
// content type survives a round trip.
func objectKey(localPath string) string {
	ext := strings.ToLower(filepath.Ext(localPath))
	return "images/" + uuid.NewString() + ext
}
