package s3infra

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/matrimony-api/internal/domain"
	"github.com/matrimony-api/internal/pkg/id"
)

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store keeps profile photos and identity documents.
type Store struct {
	client  objectAPI
	bucket  string
	baseURL string
}

// NewClient creates an S3 client. A non-nil endpoint (LocalStack) also
// switches to path-style addressing.
func NewClient(awsCfg aws.Config, endpoint *string) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
			o.UsePathStyle = true
		}
	})
}

// NewStore creates a Store for bucket. Object URLs are built from endpoint
// when set (path style), else from the regional virtual-hosted name.
func NewStore(client objectAPI, bucket, region, endpoint string) *Store {
	base := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	if endpoint != "" {
		base = strings.TrimRight(endpoint, "/") + "/" + bucket
	}
	return &Store{client: client, bucket: bucket, baseURL: base}
}

// PutImage uploads r under <folder>/<owner>/<ulid>-<name> and returns the
// stored reference. FileID is the object key.
func (s *Store) PutImage(ctx context.Context, folder, owner, filename string, r io.Reader) (domain.Image, error) {
	name := sanitizeFilename(filename)
	key := fmt.Sprintf("%s/%s/%s-%s", folder, owner, id.New(), name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentTypeFromName(name)),
	})
	if err != nil {
		return domain.Image{}, fmt.Errorf("s3 put object: %w", err)
	}
	return domain.Image{URL: s.baseURL + "/" + key, FileID: key}, nil
}

// Delete removes an object by key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func contentTypeFromName(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// sanitizeFilename strips directory components and keeps only safe characters
// (alphanumeric, dot, dash, underscore) to prevent path traversal in S3 keys.
func sanitizeFilename(name string) string {
	name = path.Base(name)
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if result := b.String(); result != "" && result != "." {
		return result
	}
	return "_"
}
