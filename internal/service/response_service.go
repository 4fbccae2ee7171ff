package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
	"github.com/ceotind/sharp-form-backend/internal/metrics"
	"github.com/ceotind/sharp-form-backend/internal/models"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

type ResponseService struct {
	forms     store.FormStore
	responses store.ResponseStore
	now       func() time.Time
}

func NewResponseService(forms store.FormStore, responses store.ResponseStore) *ResponseService {
	return &ResponseService{forms: forms, responses: responses, now: time.Now}
}

// Submit records answers against a published form. respondent is nil for
// anonymous submissions. The response is written before the form's counter
// is bumped; a failed bump is reported after the response is stored.
func (s *ResponseService) Submit(ctx context.Context, formID string, answers map[string]any, respondent *models.Identity) (string, error) {
	form, err := s.forms.Get(ctx, formID)
	if err != nil {
		return "", storeErr(err, "Form not found.", "Failed to save response.")
	}
	if !form.IsPublished {
		return "", apperr.Forbidden("This form is not accepting responses.")
	}
	if answers == nil {
		return "", apperr.InvalidInput("Answers are required.")
	}

	var missing []string
	for _, id := range form.RequiredElementIDs() {
		if _, ok := answers[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return "", apperr.New(apperr.KindInvalidInput, apperr.CodeMissingRequired, "Missing required answers").
			WithDetails(apperr.Details{"missingQuestions": missing})
	}

	resp := &models.Response{
		FormID:    formID,
		Answers:   answers,
		Timestamp: s.now().UnixMilli(),
	}
	if respondent != nil {
		uid, email := respondent.UID, respondent.Email
		resp.RespondentID = &uid
		resp.RespondentEmail = &email
	}

	id, err := s.responses.Create(ctx, resp)
	if err != nil {
		return "", apperr.Upstream("Failed to save response.", err)
	}
	metrics.ResponsesSubmitted.Inc()

	if err := s.forms.IncrementResponses(ctx, formID, 1); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("formId", formID).Str("responseId", id).
			Msg("response stored but counter not incremented")
		return "", apperr.Upstream("Failed to save response.", err).
			WithDetails(apperr.Details{"responseId": id})
	}
	return id, nil
}

// List returns a form's responses to its owner, newest first.
func (s *ResponseService) List(ctx context.Context, callerID, formID string) ([]models.ResponseView, error) {
	form, err := s.forms.Get(ctx, formID)
	if err != nil {
		return nil, storeErr(err, "Form not found.", "Failed to retrieve responses.")
	}
	if form.OwnerID != callerID {
		return nil, apperr.Forbidden("Access denied. You can only view responses to your own forms.")
	}
	responses, err := s.responses.ListByForm(ctx, formID)
	if err != nil {
		return nil, apperr.Upstream("Failed to retrieve responses.", err)
	}
	views := make([]models.ResponseView, 0, len(responses))
	for _, r := range responses {
		views = append(views, r.View())
	}
	return views, nil
}
