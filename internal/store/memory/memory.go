// Package memory implements the store contracts in process memory. It backs
// the test suites and the single-process development mode
// (SHARPFORM_STORE_BACKEND=memory); nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ceotind/sharp-form-backend/internal/models"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

// clone deep-copies v through JSON so callers never share maps or slices
// with the stored copy.
func clone[T any](v T) T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("memory: clone: %v", err))
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("memory: clone: %v", err))
	}
	return out
}

// ------------------------------------------------------------------
// Forms
// ------------------------------------------------------------------

type FormStore struct {
	mu     sync.RWMutex
	nextID int
	forms  map[string]models.Form
}

func NewFormStore() *FormStore {
	return &FormStore{forms: make(map[string]models.Form)}
}

func (s *FormStore) Create(_ context.Context, f *models.Form) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := strconv.Itoa(s.nextID)
	stored := clone(*f)
	stored.ID = id
	s.forms[id] = stored
	return id, nil
}

func (s *FormStore) Get(_ context.Context, id string) (*models.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.forms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := clone(f)
	return &out, nil
}

func (s *FormStore) ListByOwner(_ context.Context, ownerID string) ([]models.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Form, 0)
	for _, f := range s.forms {
		if f.OwnerID == ownerID {
			out = append(out, clone(f))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			a, _ := strconv.Atoi(out[i].ID)
			b, _ := strconv.Atoi(out[j].ID)
			return a > b
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *FormStore) Update(_ context.Context, id string, c models.FormChanges, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.forms[id]
	if !ok {
		return store.ErrNotFound
	}
	if expectedVersion != store.AnyVersion && f.Version != expectedVersion {
		return store.ErrConflict
	}
	c.Apply(&f)
	s.forms[id] = clone(f)
	return nil
}

func (s *FormStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.forms[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.forms, id)
	return nil
}

func (s *FormStore) IncrementResponses(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.forms[id]
	if !ok {
		return store.ErrNotFound
	}
	f.ResponsesCount += delta
	s.forms[id] = f
	return nil
}

// ------------------------------------------------------------------
// Responses
// ------------------------------------------------------------------

type ResponseStore struct {
	mu        sync.RWMutex
	nextID    int
	responses map[string][]models.Response
}

func NewResponseStore() *ResponseStore {
	return &ResponseStore{responses: make(map[string][]models.Response)}
}

func (s *ResponseStore) Create(_ context.Context, r *models.Response) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	stored := clone(*r)
	stored.ID = "r" + strconv.Itoa(s.nextID)
	s.responses[r.FormID] = append(s.responses[r.FormID], stored)
	return stored.ID, nil
}

func (s *ResponseStore) ListByForm(_ context.Context, formID string) ([]models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.responses[formID]
	out := make([]models.Response, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, clone(list[i]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

func (s *ResponseStore) DeleteByForm(_ context.Context, formID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.responses[formID])
	delete(s.responses, formID)
	return n, nil
}

// ------------------------------------------------------------------
// Users
// ------------------------------------------------------------------

type UserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]models.User)}
}

func (s *UserStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.UID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrDuplicate
		}
	}
	s.users[u.UID] = *u
	return nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *UserStore) FindByUID(_ context.Context, uid string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[uid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *UserStore) RecordLogin(_ context.Context, uid, displayName, photoURL string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return store.ErrNotFound
	}
	if displayName != "" {
		u.DisplayName = displayName
	}
	if photoURL != "" {
		u.PhotoURL = photoURL
	}
	u.LastLoginAt = at
	s.users[uid] = u
	return nil
}

// ------------------------------------------------------------------
// Blobs
// ------------------------------------------------------------------

type blob struct {
	data []byte
	info store.ObjectInfo
}

type BlobStore struct {
	mu     sync.RWMutex
	blobs  map[string]blob
	signer store.URLSigner
	now    func() time.Time
}

// NewBlobStore returns an empty blob store. signer may be nil, in which case
// SignedURL fails.
func NewBlobStore(signer store.URLSigner) *BlobStore {
	return &BlobStore{blobs: make(map[string]blob), signer: signer, now: time.Now}
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *BlobStore) Put(_ context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = blob{
		data: append([]byte(nil), data...),
		info: store.ObjectInfo{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  contentType,
			Metadata:     copyMeta(metadata),
			LastModified: s.now().UTC(),
		},
	}
	return nil
}

func (s *BlobStore) Get(_ context.Context, key string) ([]byte, *store.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	info := b.info
	info.Metadata = copyMeta(b.info.Metadata)
	return append([]byte(nil), b.data...), &info, nil
}

func (s *BlobStore) Stat(_ context.Context, key string) (*store.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	info := b.info
	info.Metadata = copyMeta(b.info.Metadata)
	return &info, nil
}

func (s *BlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}

func (s *BlobStore) List(_ context.Context, prefix string) ([]store.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.ObjectInfo, 0)
	for key, b := range s.blobs {
		if strings.HasPrefix(key, prefix) {
			info := b.info
			info.Metadata = copyMeta(b.info.Metadata)
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *BlobStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("memory: no url signer configured")
	}
	return s.signer.SignURL(key, ttl)
}

// SetModTime overrides the recorded modification time of key. Retention
// tests use it to age objects.
func (s *BlobStore) SetModTime(key string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blobs[key]; ok {
		b.info.LastModified = at
		s.blobs[key] = b
	}
}
