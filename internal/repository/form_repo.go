package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ceotind/sharp-form-backend/internal/models"
	"github.com/ceotind/sharp-form-backend/internal/oxidb"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

const FormsCollection = "forms"

// Pool hands out connected clients.
type Pool interface {
	Get() *oxidb.Client
}

type FormRepo struct {
	pool Pool
}

func NewFormRepo(pool Pool) *FormRepo {
	return &FormRepo{pool: pool}
}

func (r *FormRepo) EnsureIndexes(ctx context.Context) error {
	c := r.pool.Get()
	if err := c.CreateIndex(ctx, FormsCollection, "ownerId"); err != nil {
		return err
	}
	return c.CreateCompositeIndex(ctx, FormsCollection, []string{"ownerId", "createdAtMs"})
}

func (r *FormRepo) Create(ctx context.Context, form *models.Form) (string, error) {
	doc, err := formToDoc(form)
	if err != nil {
		return "", err
	}
	result, err := r.pool.Get().Insert(ctx, FormsCollection, doc)
	if err != nil {
		return "", translate("insert form", err)
	}
	return extractID(result), nil
}

func (r *FormRepo) Get(ctx context.Context, id string) (*models.Form, error) {
	doc, err := r.pool.Get().FindOne(ctx, FormsCollection, map[string]any{"_id": toNumericID(id)})
	if err != nil {
		return nil, translate("find form", err)
	}
	if doc == nil {
		return nil, store.ErrNotFound
	}
	return docToForm(doc)
}

func (r *FormRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.Form, error) {
	docs, err := r.pool.Get().Find(ctx, FormsCollection, map[string]any{"ownerId": ownerID}, &oxidb.FindOptions{
		Sort: map[string]any{"createdAtMs": -1},
	})
	if err != nil {
		return nil, translate("list forms", err)
	}
	forms := make([]models.Form, 0, len(docs))
	for _, d := range docs {
		f, err := docToForm(d)
		if err != nil {
			return nil, err
		}
		forms = append(forms, *f)
	}
	return forms, nil
}

// Update writes only the changed fields and bumps version in the same
// statement. The version guard is part of the match query.
func (r *FormRepo) Update(ctx context.Context, id string, changes models.FormChanges, expectedVersion int64) error {
	set, err := changesToSet(changes)
	if err != nil {
		return err
	}
	query := map[string]any{"_id": toNumericID(id)}
	if expectedVersion != store.AnyVersion {
		query["version"] = expectedVersion
	}
	c := r.pool.Get()
	result, err := c.UpdateOne(ctx, FormsCollection, query, map[string]any{
		"$set": set,
		"$inc": map[string]any{"version": 1},
	})
	if err != nil {
		return translate("update form", err)
	}
	if oxidb.Count(result, "modified") > 0 {
		return nil
	}

	doc, err := c.FindOne(ctx, FormsCollection, map[string]any{"_id": toNumericID(id)})
	if err != nil {
		return translate("update form", err)
	}
	if doc == nil {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (r *FormRepo) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Get().DeleteOne(ctx, FormsCollection, map[string]any{"_id": toNumericID(id)})
	if err != nil {
		return translate("delete form", err)
	}
	if oxidb.Count(result, "deleted") == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *FormRepo) IncrementResponses(ctx context.Context, id string, delta int) error {
	result, err := r.pool.Get().UpdateOne(ctx, FormsCollection,
		map[string]any{"_id": toNumericID(id)},
		map[string]any{"$inc": map[string]any{"responsesCount": delta}},
	)
	if err != nil {
		return translate("increment responses", err)
	}
	if oxidb.Count(result, "modified") == 0 {
		return store.ErrNotFound
	}
	return nil
}

func formToDoc(f *models.Form) (map[string]any, error) {
	doc, err := toDoc(f)
	if err != nil {
		return nil, fmt.Errorf("encode form: %w", err)
	}
	doc["createdAtMs"] = f.CreatedAt.UnixMilli()
	return doc, nil
}

func docToForm(doc map[string]any) (*models.Form, error) {
	delete(doc, "createdAtMs")
	var f models.Form
	if err := fromDoc(doc, &f); err != nil {
		return nil, fmt.Errorf("decode form: %w", err)
	}
	if f.Elements == nil {
		f.Elements = []models.Element{}
	}
	return &f, nil
}

// changesToSet renders the $set document of a change set.
func changesToSet(c models.FormChanges) (map[string]any, error) {
	set := map[string]any{"updatedAt": c.UpdatedAt.UTC().Format(time.RFC3339Nano)}
	if c.Name != nil {
		set["name"] = *c.Name
	}
	if c.Description != nil {
		set["description"] = *c.Description
	}
	if c.Elements != nil {
		data, err := json.Marshal(c.Elements)
		if err != nil {
			return nil, fmt.Errorf("encode elements: %w", err)
		}
		var elements []any
		if err := json.Unmarshal(data, &elements); err != nil {
			return nil, fmt.Errorf("encode elements: %w", err)
		}
		set["elements"] = elements
	}
	if c.SlugSet {
		if c.Slug != nil {
			set["slug"] = *c.Slug
		} else {
			set["slug"] = nil
		}
	}
	if c.IsPublished != nil {
		set["isPublished"] = *c.IsPublished
	}
	return set, nil
}
