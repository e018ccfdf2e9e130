package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Archive stores dispatched snaps in an S3-compatible bucket
type S3Archive struct {
	s3Client *s3.Client
	s3Bucket string
}

// NewS3Archive creates a new snap archive
func NewS3Archive(ctx context.Context, awsRegion, s3Bucket, accessKey, secretKey, endpoint string) (*S3Archive, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(awsRegion)}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{
		s3Client: s3Client,
		s3Bucket: s3Bucket,
	}, nil
}

// Archive uploads data under key
func (a *S3Archive) Archive(ctx context.Context, key string, data []byte) error {
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.s3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}
	return nil
}

// SnapObjectKey returns the archive key of a snap: snaps/{sender_id}/{snap_id}
func SnapObjectKey(senderID, snapID string) string {
	return fmt.Sprintf("snaps/%s/%s", senderID, snapID)
}
