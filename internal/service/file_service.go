package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
	"github.com/ceotind/sharp-form-backend/internal/auth"
	"github.com/ceotind/sharp-form-backend/internal/filecheck"
	"github.com/ceotind/sharp-form-backend/internal/metrics"
	"github.com/ceotind/sharp-form-backend/internal/models"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

type FileOptions struct {
	Retention time.Duration
	LinkTTL   time.Duration
}

type FileService struct {
	blobs   store.BlobStore
	checker *filecheck.Checker
	links   *auth.LinkSigner
	opts    FileOptions
	now     func() time.Time
}

// NewFileService wires the file pipeline. links verifies download tokens and
// may be nil when the blob backend signs its own URLs.
func NewFileService(blobs store.BlobStore, checker *filecheck.Checker, links *auth.LinkSigner, opts FileOptions) *FileService {
	return &FileService{blobs: blobs, checker: checker, links: links, opts: opts, now: time.Now}
}

// Checker exposes the validation limits to the transport layer.
func (s *FileService) Checker() *filecheck.Checker {
	return s.checker
}

// Upload validates u and stores it under the owner's prefix with a random
// name. Files past retention are swept first.
func (s *FileService) Upload(ctx context.Context, ownerID string, u *filecheck.Upload) (*models.FileInfo, error) {
	s.sweepQuietly(ctx, models.OwnerPrefix(ownerID))

	ext, err := s.checker.Validate(u)
	if err != nil {
		metrics.Uploads.WithLabelValues(apperr.From(err).Code).Inc()
		return nil, err
	}

	fileName := uuid.NewString() + "." + ext
	key := models.OwnerPrefix(ownerID) + fileName
	uploadedAt := s.now().UTC()
	meta := map[string]string{
		models.MetaOriginalName: u.FileName,
		models.MetaUploadedBy:   ownerID,
		models.MetaUploadedAt:   uploadedAt.Format(time.RFC3339Nano),
	}
	if err := s.blobs.Put(ctx, key, u.Data, u.ContentType, meta); err != nil {
		metrics.Uploads.WithLabelValues(apperr.CodeUpstream).Inc()
		return nil, apperr.Upstream("Failed to upload file.", err)
	}
	url, err := s.blobs.SignedURL(ctx, key, s.opts.LinkTTL)
	if err != nil {
		metrics.Uploads.WithLabelValues(apperr.CodeUpstream).Inc()
		return nil, apperr.Upstream("Failed to upload file.", err)
	}
	metrics.Uploads.WithLabelValues("OK").Inc()
	zerolog.Ctx(ctx).Info().Str("key", key).Int("size", len(u.Data)).Msg("file uploaded")

	return &models.FileInfo{
		FileName:     fileName,
		OriginalName: u.FileName,
		ContentType:  u.ContentType,
		Size:         int64(len(u.Data)),
		UploadedAt:   uploadedAt,
		Path:         key,
		URL:          url,
	}, nil
}

// List returns the owner's files after sweeping expired ones.
func (s *FileService) List(ctx context.Context, ownerID string) ([]models.FileInfo, error) {
	prefix := models.OwnerPrefix(ownerID)
	s.sweepQuietly(ctx, prefix)

	objects, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, apperr.Upstream("Failed to list files.", err)
	}
	files := make([]models.FileInfo, 0, len(objects))
	for _, obj := range objects {
		url, err := s.blobs.SignedURL(ctx, obj.Key, s.opts.LinkTTL)
		if err != nil {
			return nil, apperr.Upstream("Failed to list files.", err)
		}
		uploadedAt, _ := uploadTime(obj)
		files = append(files, models.FileInfo{
			FileName:     strings.TrimPrefix(obj.Key, prefix),
			OriginalName: obj.Metadata[models.MetaOriginalName],
			ContentType:  obj.ContentType,
			Size:         obj.Size,
			UploadedAt:   uploadedAt,
			Path:         obj.Key,
			URL:          url,
		})
	}
	return files, nil
}

// Delete removes one of the owner's files. fileName must be a bare name.
func (s *FileService) Delete(ctx context.Context, ownerID, fileName string) error {
	if fileName == "" || strings.ContainsAny(fileName, `/\`) || strings.Contains(fileName, "..") {
		return apperr.InvalidInput("Invalid file name.")
	}
	key := models.OwnerPrefix(ownerID) + fileName
	if _, err := s.blobs.Stat(ctx, key); err != nil {
		return storeErr(err, "File not found.", "Failed to delete file.")
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		return storeErr(err, "File not found.", "Failed to delete file.")
	}
	zerolog.Ctx(ctx).Info().Str("key", key).Msg("file deleted")
	return nil
}

// Download resolves a signed link token to the object it grants.
func (s *FileService) Download(ctx context.Context, token string) ([]byte, *store.ObjectInfo, error) {
	if s.links == nil {
		return nil, nil, apperr.NotFound("Direct downloads are not enabled.")
	}
	if token == "" {
		return nil, nil, apperr.InvalidInput("Download token is required.")
	}
	key, err := s.links.Verify(token)
	if err != nil || !strings.HasPrefix(key, models.UploadsPrefix) {
		return nil, nil, apperr.Forbidden("Invalid or expired download link.")
	}
	data, info, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, nil, storeErr(err, "File not found.", "Failed to download file.")
	}
	return data, info, nil
}

// Sweep deletes the owner's files older than the retention period and
// reports how many were removed.
func (s *FileService) Sweep(ctx context.Context, ownerID string) (int, error) {
	return s.sweep(ctx, models.OwnerPrefix(ownerID))
}

// SweepAll runs the retention sweep across every owner.
func (s *FileService) SweepAll(ctx context.Context) (int, error) {
	return s.sweep(ctx, models.UploadsPrefix)
}

func (s *FileService) sweepQuietly(ctx context.Context, prefix string) {
	if _, err := s.sweep(ctx, prefix); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("prefix", prefix).Msg("retention sweep failed")
	}
}

// sweep never stops on a single object; per-object failures are logged.
func (s *FileService) sweep(ctx context.Context, prefix string) (int, error) {
	if s.opts.Retention <= 0 {
		return 0, nil
	}
	objects, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	log := zerolog.Ctx(ctx)
	cutoff := s.now().Add(-s.opts.Retention)
	deleted := 0
	for _, obj := range objects {
		uploadedAt, ok := uploadTime(obj)
		if !ok || !uploadedAt.Before(cutoff) {
			continue
		}
		if err := s.blobs.Delete(ctx, obj.Key); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Str("key", obj.Key).Msg("retention delete failed")
			continue
		}
		deleted++
		metrics.RetentionDeletes.Inc()
		log.Info().Str("key", obj.Key).Time("uploadedAt", uploadedAt).Msg("cleaned up old file")
	}
	return deleted, nil
}

// uploadTime reads the recorded upload timestamp, falling back to the
// backend's modification time.
func uploadTime(obj store.ObjectInfo) (time.Time, bool) {
	if v := obj.Metadata[models.MetaUploadedAt]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
	}
	if !obj.LastModified.IsZero() {
		return obj.LastModified, true
	}
	return time.Time{}, false
}
