// Copyright 2025 James Ross
package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/config"
)

// S3 is the aws-sdk-go-backed FileStore used in production; artefacts are
// partitioned under FileStore.Prefix/<workflow_id>/... per filestore.go's
// key builders.
type S3 struct {
	bucket   string
	client   *s3.S3
	uploader *s3manager.Uploader
	log      *zap.Logger
}

// NewS3 opens an S3 client per cfg and verifies bucket access.
func NewS3(cfg config.FileStore, log *zap.Logger) (*S3, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	client := s3.New(sess)
	if _, err := client.HeadBucket(&s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("access bucket %s: %w", cfg.Bucket, err)
	}
	return &S3{
		bucket:   cfg.Bucket,
		client:   client,
		uploader: s3manager.NewUploader(sess),
		log:      log,
	}, nil
}

func (s *S3) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.log.Debug("filestore put", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List lists every object under pattern's non-glob prefix and filters with
// doublestar so callers can pass globs like "workflows/wf-1/logs/**/*.log".
func (s *S3) List(ctx context.Context, pattern string) ([]string, error) {
	prefix := staticPrefix(pattern)
	var matches []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			ok, err := doublestar.Match(pattern, key)
			if err == nil && ok {
				matches = append(matches, key)
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", pattern, err)
	}
	return matches, nil
}

func (s *S3) URL(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// staticPrefix returns the portion of a glob pattern before its first
// wildcard, used to scope the S3 ListObjectsV2 call.
func staticPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		cut := strings.LastIndex(pattern[:i], "/")
		if cut < 0 {
			return ""
		}
		return pattern[:cut]
	}
	return pattern
}
