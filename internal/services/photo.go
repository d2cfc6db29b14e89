package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"pabili-backend/internal/apperr"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Photo categories recognised by the storage layer.
const (
	PhotoCategoryItems    = "items"
	PhotoCategoryReceipts = "receipts"
)

// PhotoService uploads photos to S3-compatible object storage and
// returns their publicly resolvable URLs.
type PhotoService struct {
	client    *s3.Client
	bucket    string
	region    string
	endpoint  string
	publicURL func(key string) string
}

// NewPhotoService creates a new photo service
func NewPhotoService(awsRegion, s3Bucket, accessKey, secretKey, endpoint string) (*PhotoService, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(awsRegion),
	}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	svc := &PhotoService{
		client:   client,
		bucket:   s3Bucket,
		region:   awsRegion,
		endpoint: endpoint,
	}
	svc.publicURL = svc.defaultPublicURL

	return svc, nil
}

func (s *PhotoService) defaultPublicURL(key string) string {
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.endpoint, "/"), s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// Upload stores one photo under the given category and returns its
// public URL. The key scheme keeps uploads unique without coordination:
// {category}/{unix-ms}_{random}{ext}.
func (s *PhotoService) Upload(ctx context.Context, category, filename, contentType string, data []byte) (string, error) {
	if category != PhotoCategoryItems && category != PhotoCategoryReceipts {
		return "", apperr.InvalidInput("unknown photo category %q", category)
	}
	if len(data) == 0 {
		return "", apperr.InvalidInput("photo is empty")
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	ext := path.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}
	key := fmt.Sprintf("%s/%d_%s%s", category, time.Now().UnixMilli(), uuid.New().String()[:8], ext)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", apperr.Store(err, "failed to upload photo")
	}

	return s.publicURL(key), nil
}
