package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ceotind/sharp-form-backend/internal/oxidb"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

const DefaultBucket = "sharpform_uploads"

// BlobRepo keeps uploaded files in an OxiDB bucket. OxiDB has no presigned
// URLs, so links come from signer.
type BlobRepo struct {
	pool   Pool
	bucket string
	signer store.URLSigner
}

func NewBlobRepo(pool Pool, bucket string, signer store.URLSigner) *BlobRepo {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &BlobRepo{pool: pool, bucket: bucket, signer: signer}
}

// EnsureBucket creates the bucket, tolerating one that already exists.
func (r *BlobRepo) EnsureBucket(ctx context.Context) error {
	err := r.pool.Get().CreateBucket(ctx, r.bucket)
	if err != nil && !oxidb.IsAlreadyExists(err) {
		return translate("create bucket", err)
	}
	return nil
}

func (r *BlobRepo) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	if _, err := r.pool.Get().PutObject(ctx, r.bucket, key, data, contentType, metadata); err != nil {
		return translate("put object", err)
	}
	return nil
}

// Get fetches the content and then the object's head, since get_object
// does not return user metadata in a stable shape.
func (r *BlobRepo) Get(ctx context.Context, key string) ([]byte, *store.ObjectInfo, error) {
	data, _, err := r.pool.Get().GetObject(ctx, r.bucket, key)
	if err != nil {
		return nil, nil, translate("get object", err)
	}
	info, err := r.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if info.Size == 0 {
		info.Size = int64(len(data))
	}
	return data, info, nil
}

func (r *BlobRepo) Stat(ctx context.Context, key string) (*store.ObjectInfo, error) {
	meta, err := r.pool.Get().HeadObject(ctx, r.bucket, key)
	if err != nil {
		return nil, translate("head object", err)
	}
	if meta == nil {
		return nil, store.ErrNotFound
	}
	info := objectInfo(key, meta)
	return &info, nil
}

func (r *BlobRepo) Delete(ctx context.Context, key string) error {
	if err := r.pool.Get().DeleteObject(ctx, r.bucket, key); err != nil {
		return translate("delete object", err)
	}
	return nil
}

// List returns every object under prefix. Listing entries carry no user
// metadata, so each one is followed by a head request; objects removed in
// between are skipped.
func (r *BlobRepo) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	entries, err := r.pool.Get().ListObjects(ctx, r.bucket, prefix)
	if err != nil {
		return nil, translate("list objects", err)
	}
	out := make([]store.ObjectInfo, 0, len(entries))
	for _, e := range entries {
		key, _ := e["key"].(string)
		if key == "" {
			continue
		}
		info, err := r.Stat(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}

func (r *BlobRepo) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if r.signer == nil {
		return "", fmt.Errorf("blob repo: no url signer configured")
	}
	return r.signer.SignURL(key, ttl)
}

func objectInfo(key string, meta map[string]any) store.ObjectInfo {
	info := store.ObjectInfo{Key: key, Metadata: map[string]string{}}
	if k, ok := meta["key"].(string); ok && k != "" {
		info.Key = k
	}
	if size, ok := meta["size"].(float64); ok {
		info.Size = int64(size)
	}
	info.ContentType, _ = meta["content_type"].(string)
	if m, ok := meta["metadata"].(map[string]any); ok {
		for k, v := range m {
			if s, ok := v.(string); ok {
				info.Metadata[k] = s
			}
		}
	}
	for _, field := range []string{"last_modified", "updated_at", "created_at"} {
		if s, ok := meta[field].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				info.LastModified = t
				break
			}
		}
	}
	return info
}
