package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const defaultPrefix = "images"

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores user images under <prefix>/<userId>/<uuid>.jpg and
// returns their virtual-hosted URL.
type S3Uploader struct {
	api    s3API
	bucket string
	region string
	prefix string
	newID  func() string
}

func NewS3Uploader(api s3API, bucket, region, prefix string) (*S3Uploader, error) {
	if api == nil {
		return nil, errors.New("objectstore: s3 client must not be nil")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("objectstore: bucket must not be empty")
	}
	if strings.TrimSpace(region) == "" {
		return nil, errors.New("objectstore: region must not be empty")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &S3Uploader{
		api:    api,
		bucket: bucket,
		region: region,
		prefix: prefix,
		newID:  func() string { return uuid.NewString() },
	}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, userID string, body io.ReadSeeker) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("objectstore: userId is required")
	}
	key := fmt.Sprintf("%s/%s/%s.jpg", u.prefix, userID, u.newID())
	_, err := u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: PutObject: %w", err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key), nil
}
