package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotConfigured means the MinIO endpoint or credentials are missing.
var ErrNotConfigured = errors.New("no object storage configuration")

// ImageStore archives uploaded images in a MinIO bucket.
type ImageStore struct {
	client *minio.Client
	bucket string
}

// NewFromEnv connects using the MINIO_* environment variables and checks
// that the bucket exists.
func NewFromEnv(ctx context.Context) (*ImageStore, error) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	if endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, ErrNotConfigured
	}

	bucket := os.Getenv("MINIO_BUCKET")
	if bucket == "" {
		bucket = "scans"
	}
	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	return New(ctx, endpoint, accessKey, secretKey, bucket, useSSL)
}

// New creates an ImageStore for bucket on endpoint.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*ImageStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// Verify bucket exists
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	return &ImageStore{client: client, bucket: bucket}, nil
}

// Bucket returns the bucket name.
func (s *ImageStore) Bucket() string {
	return s.bucket
}

// Upload stores an image under YYYY/MM/{filename} and returns the
// bucket-qualified path kept in the scan history.
func (s *ImageStore) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	objectName := ObjectName(time.Now(), filename)

	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	return s.bucket + "/" + objectName, nil
}

// PresignedURL generates a URL valid for 24 hours for viewing an image
func (s *ImageStore) PresignedURL(ctx context.Context, objectPath string) (*url.URL, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, s.trimBucket(objectPath), 24*time.Hour, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u, nil
}

// Delete removes an image from storage
func (s *ImageStore) Delete(ctx context.Context, objectPath string) error {
	return s.client.RemoveObject(ctx, s.bucket, s.trimBucket(objectPath), minio.RemoveObjectOptions{})
}

// trimBucket removes the bucket prefix if present
func (s *ImageStore) trimBucket(objectPath string) string {
	return strings.TrimPrefix(objectPath, s.bucket+"/")
}

// ObjectName builds the dated object key for filename.
func ObjectName(now time.Time, filename string) string {
	return fmt.Sprintf("%d/%02d/%s", now.Year(), now.Month(), filename)
}

// FileExtension extracts file extension from content type
func FileExtension(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ".bin"
	}
}
