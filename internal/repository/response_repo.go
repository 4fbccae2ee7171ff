package repository

import (
	"context"
	"fmt"

	"github.com/ceotind/sharp-form-backend/internal/models"
	"github.com/ceotind/sharp-form-backend/internal/oxidb"
)

const ResponsesCollection = "responses"

type ResponseRepo struct {
	pool Pool
}

func NewResponseRepo(pool Pool) *ResponseRepo {
	return &ResponseRepo{pool: pool}
}

func (r *ResponseRepo) EnsureIndexes(ctx context.Context) error {
	c := r.pool.Get()
	if err := c.CreateIndex(ctx, ResponsesCollection, "formId"); err != nil {
		return err
	}
	return c.CreateCompositeIndex(ctx, ResponsesCollection, []string{"formId", "timestamp"})
}

func (r *ResponseRepo) Create(ctx context.Context, resp *models.Response) (string, error) {
	doc, err := toDoc(resp)
	if err != nil {
		return "", fmt.Errorf("encode response: %w", err)
	}
	result, err := r.pool.Get().Insert(ctx, ResponsesCollection, doc)
	if err != nil {
		return "", translate("insert response", err)
	}
	return extractID(result), nil
}

func (r *ResponseRepo) ListByForm(ctx context.Context, formID string) ([]models.Response, error) {
	docs, err := r.pool.Get().Find(ctx, ResponsesCollection, map[string]any{"formId": formID}, &oxidb.FindOptions{
		Sort: map[string]any{"timestamp": -1},
	})
	if err != nil {
		return nil, translate("list responses", err)
	}
	out := make([]models.Response, 0, len(docs))
	for _, d := range docs {
		var resp models.Response
		if err := fromDoc(d, &resp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		out = append(out, resp)
	}
	return out, nil
}

func (r *ResponseRepo) DeleteByForm(ctx context.Context, formID string) (int, error) {
	result, err := r.pool.Get().Delete(ctx, ResponsesCollection, map[string]any{"formId": formID})
	if err != nil {
		return 0, translate("delete responses", err)
	}
	return oxidb.Count(result, "deleted"), nil
}
