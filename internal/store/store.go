// Package store defines the persistence contracts the services depend on:
// a document store for forms, responses and user profiles, and a blob store
// for uploaded files. Implementations live in internal/repository (OxiDB),
// internal/s3blob (S3) and internal/store/memory (in-process).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ceotind/sharp-form-backend/internal/models"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrConflict  = errors.New("store: version conflict")
	ErrDuplicate = errors.New("store: duplicate")
)

// AnyVersion disables the compare-and-swap check on FormStore.Update.
const AnyVersion int64 = 0

type FormStore interface {
	// Create stores f and returns the assigned id.
	Create(ctx context.Context, f *models.Form) (string, error)
	Get(ctx context.Context, id string) (*models.Form, error)
	// ListByOwner returns the owner's forms, newest created first.
	ListByOwner(ctx context.Context, ownerID string) ([]models.Form, error)
	// Update applies c. When expectedVersion is not AnyVersion the write only
	// happens if the stored version matches, otherwise ErrConflict.
	Update(ctx context.Context, id string, c models.FormChanges, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
	// IncrementResponses atomically adds delta to responsesCount.
	IncrementResponses(ctx context.Context, id string, delta int) error
}

type ResponseStore interface {
	Create(ctx context.Context, r *models.Response) (string, error)
	// ListByForm returns a form's responses, newest first.
	ListByForm(ctx context.Context, formID string) ([]models.Response, error)
	// DeleteByForm removes every response of a form and reports how many
	// were removed. Deleting from an empty form is not an error.
	DeleteByForm(ctx context.Context, formID string) (int, error)
}

type UserStore interface {
	// Create fails with ErrDuplicate when the email is taken.
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUID(ctx context.Context, uid string) (*models.User, error)
	// RecordLogin refreshes lastLoginAt and, when non-empty, the profile
	// display name and photo.
	RecordLogin(ctx context.Context, uid, displayName, photoURL string, at time.Time) error
}

// ObjectInfo describes a stored blob.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	Metadata     map[string]string
	LastModified time.Time
}

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error)
	// Stat returns ErrNotFound for missing keys.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// SignedURL returns a URL granting read access to key until ttl elapses.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// URLSigner issues download links for backends without native signing.
type URLSigner interface {
	SignURL(key string, ttl time.Duration) (string, error)
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
