package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ceotind/sharp-form-backend/internal/models"
	"github.com/ceotind/sharp-form-backend/internal/oxidb"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

const UsersCollection = "users"

type UserRepo struct {
	pool Pool
}

func NewUserRepo(pool Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) EnsureIndexes(ctx context.Context) error {
	c := r.pool.Get()
	if err := c.CreateUniqueIndex(ctx, UsersCollection, "email"); err != nil {
		return err
	}
	return c.CreateUniqueIndex(ctx, UsersCollection, "uid")
}

// Create stores u. Emails are stored lower-cased so the unique index is
// case-insensitive.
func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	doc, err := toDoc(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	doc["email"] = strings.ToLower(u.Email)
	if _, err := r.pool.Get().Insert(ctx, UsersCollection, doc); err != nil {
		return translate("insert user", err)
	}
	return nil
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, map[string]any{"email": strings.ToLower(email)})
}

func (r *UserRepo) FindByUID(ctx context.Context, uid string) (*models.User, error) {
	return r.findOne(ctx, map[string]any{"uid": uid})
}

func (r *UserRepo) RecordLogin(ctx context.Context, uid, displayName, photoURL string, at time.Time) error {
	set := map[string]any{"lastLoginAt": at.UTC().Format(time.RFC3339Nano)}
	if displayName != "" {
		set["displayName"] = displayName
	}
	if photoURL != "" {
		set["photoURL"] = photoURL
	}
	c := r.pool.Get()
	result, err := c.UpdateOne(ctx, UsersCollection, map[string]any{"uid": uid}, map[string]any{"$set": set})
	if err != nil {
		return translate("record login", err)
	}
	if oxidb.Count(result, "modified") == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *UserRepo) findOne(ctx context.Context, query map[string]any) (*models.User, error) {
	doc, err := r.pool.Get().FindOne(ctx, UsersCollection, query)
	if err != nil {
		return nil, translate("find user", err)
	}
	if doc == nil {
		return nil, store.ErrNotFound
	}
	delete(doc, "_id")
	var u models.User
	if err := fromDoc(doc, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}
