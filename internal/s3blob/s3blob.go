// Package s3blob stores uploaded files in an S3 (or S3-compatible) bucket
// and hands out presigned GET URLs.
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ceotind/sharp-form-backend/internal/models"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

// maxPresign is the longest expiry SigV4 accepts.
const maxPresign = 7 * 24 * time.Hour

// API is the subset of *s3.Client the store uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

type Store struct {
	api     API
	presign Presigner
	bucket  string
}

// New loads the default AWS credential chain and builds a Store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket is required")
	}
	var loaders []func(*config.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return NewWithClient(client, s3.NewPresignClient(client), opts.Bucket), nil
}

func NewWithClient(api API, presign Presigner, bucket string) *Store {
	return &Store{api: api, presign: presign, bucket: bucket}
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, *store.ObjectInfo, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, wrap("get", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	info := &store.ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  aws.ToString(out.ContentType),
		Metadata:     canonicalMetadata(out.Metadata),
		LastModified: aws.ToTime(out.LastModified),
	}
	return data, info, nil
}

func (s *Store) Stat(ctx context.Context, key string) (*store.ObjectInfo, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrap("head", key, err)
	}
	return &store.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		Metadata:     canonicalMetadata(out.Metadata),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Delete is idempotent on S3; a missing key is not reported.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return wrap("delete", key, err)
	}
	return nil
}

// List pages through the prefix and heads every object for its metadata.
func (s *Store) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	out := make([]store.ObjectInfo, 0)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			info, err := s.Stat(ctx, aws.ToString(obj.Key))
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, *info)
		}
	}
	return out, nil
}

// SignedURL presigns a GET. ttl is capped at the SigV4 maximum of 7 days.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > maxPresign {
		ttl = maxPresign
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3blob: presign %s: %w", key, err)
	}
	return req.URL, nil
}

func wrap(op, key string, err error) error {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) || strings.Contains(err.Error(), "NotFound") {
		return fmt.Errorf("s3blob: %s %s: %w", op, key, store.ErrNotFound)
	}
	return fmt.Errorf("s3blob: %s %s: %w", op, key, err)
}

var metadataKeys = []string{models.MetaOriginalName, models.MetaUploadedBy, models.MetaUploadedAt}

// canonicalMetadata restores the casing of known keys; S3 returns user
// metadata keys lower-cased.
func canonicalMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		name := k
		for _, known := range metadataKeys {
			if strings.EqualFold(k, known) {
				name = known
				break
			}
		}
		out[name] = v
	}
	return out
}
