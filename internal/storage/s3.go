package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/todaymission/backend/internal/config"
)

// BadgeImagePrefix is the key prefix under which badge artwork is stored.
const BadgeImagePrefix = "badges/"

// ErrEmptyKey indicates an object name that resolves to an empty key.
var ErrEmptyKey = errors.New("storage: empty object key")

// ImageStore uploads badge artwork and returns its public URL.
type ImageStore interface {
	SaveImage(ctx context.Context, name string, r io.Reader) (string, error)
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Storage implements ImageStore backed by an S3-compatible service.
type S3Storage struct {
	uploader uploader
	bucket   string
	baseURL  string
}

// NewS3Storage configures an uploader targeting the provided object store.
func NewS3Storage(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Storage, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	// Badge images are small; a single part is enough.
	up := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = manager.MinUploadPartSize
		u.Concurrency = 1
		u.LeavePartsOnError = false
	})

	return newS3Storage(up, cfg), nil
}

func newS3Storage(up uploader, cfg config.ObjectStoreConfig) *S3Storage {
	return &S3Storage{
		uploader: up,
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}
}

// SaveImage uploads a badge image under BadgeImagePrefix and returns where it
// can be fetched from.
func (s *S3Storage) SaveImage(ctx context.Context, name string, r io.Reader) (string, error) {
	base := path.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == "" {
		return "", ErrEmptyKey
	}
	key := BadgeImagePrefix + base

	contentType := mime.TypeByExtension(path.Ext(base))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         r,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=86400"),
		ACL:          s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("s3 storage upload %s: %w", key, err)
	}

	return s.publicURL(key), nil
}

func (s *S3Storage) publicURL(key string) string {
	if s.baseURL == "" {
		return key
	}
	return s.baseURL + "/" + key
}

var _ ImageStore = (*S3Storage)(nil)
