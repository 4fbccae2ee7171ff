package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ceotind/sharp-form-backend/internal/apperr"
	"github.com/ceotind/sharp-form-backend/internal/models"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

type FormService struct {
	forms     store.FormStore
	responses store.ResponseStore
	blobs     store.BlobStore
	now       func() time.Time
}

func NewFormService(forms store.FormStore, responses store.ResponseStore, blobs store.BlobStore) *FormService {
	return &FormService{forms: forms, responses: responses, blobs: blobs, now: time.Now}
}

// invalidElements returns the indexes of elements missing a type or label.
func invalidElements(elements []models.Element) []int {
	var bad []int
	for i, el := range elements {
		if strings.TrimSpace(el.Type) == "" || strings.TrimSpace(el.Label) == "" {
			bad = append(bad, i)
		}
	}
	return bad
}

func elementsError(message string, bad []int) error {
	return apperr.InvalidInput(message).WithDetails(apperr.Details{"invalidElements": bad})
}

func (s *FormService) Create(ctx context.Context, ownerID string, in models.FormInput) (*models.Form, error) {
	if strings.TrimSpace(in.Name) == "" || in.Elements == nil {
		return nil, apperr.InvalidInput("Form name and elements array are required.")
	}
	if bad := invalidElements(in.Elements); len(bad) > 0 {
		return nil, elementsError("Each form element must have a type and a label.", bad)
	}

	now := s.now().UTC()
	form := &models.Form{
		OwnerID:     ownerID,
		Name:        in.Name,
		Description: in.Description,
		Elements:    in.Elements,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Slug != nil && *in.Slug != "" {
		slug := *in.Slug
		form.Slug = &slug
	}
	if in.IsPublished != nil {
		form.IsPublished = *in.IsPublished
	}

	id, err := s.forms.Create(ctx, form)
	if err != nil {
		return nil, apperr.Upstream("Failed to create form.", err)
	}
	form.ID = id
	zerolog.Ctx(ctx).Info().Str("formId", id).Str("ownerId", ownerID).Msg("form created")
	return form, nil
}

func (s *FormService) List(ctx context.Context, ownerID string) ([]models.Form, error) {
	forms, err := s.forms.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.Upstream("Failed to retrieve forms.", err)
	}
	return forms, nil
}

// Get returns the form to its owner, or to anyone once published.
func (s *FormService) Get(ctx context.Context, callerID, formID string) (*models.Form, error) {
	form, err := s.forms.Get(ctx, formID)
	if err != nil {
		return nil, storeErr(err, "Form not found.", "Failed to retrieve form.")
	}
	if form.OwnerID != callerID && !form.IsPublished {
		return nil, apperr.Forbidden("Forbidden. You do not have access to this form or it is not public.")
	}
	return form, nil
}

func (s *FormService) owned(ctx context.Context, callerID, formID, denied string) (*models.Form, error) {
	form, err := s.forms.Get(ctx, formID)
	if err != nil {
		return nil, storeErr(err, "Form not found.", "Failed to retrieve form.")
	}
	if form.OwnerID != callerID {
		return nil, apperr.Forbidden(denied)
	}
	return form, nil
}

type UpdateResult struct {
	FormID        string
	UpdatedFields []string
	Version       int64
}

// Update applies a partial update. expectedVersion, when not
// store.AnyVersion, must match the stored version.
func (s *FormService) Update(ctx context.Context, callerID, formID string, patch models.FormPatch, expectedVersion int64) (*UpdateResult, error) {
	form, err := s.owned(ctx, callerID, formID, "Forbidden. You can only update your own forms.")
	if err != nil {
		return nil, err
	}

	changes, err := s.buildChanges(patch)
	if err != nil {
		return nil, err
	}
	if expectedVersion != store.AnyVersion && form.Version != expectedVersion {
		return nil, versionMismatch(form.Version, expectedVersion)
	}

	if err := s.forms.Update(ctx, formID, changes, expectedVersion); err != nil {
		return nil, storeErr(err, "Form not found.", "Failed to update form.")
	}

	version := form.Version + 1
	if expectedVersion == store.AnyVersion {
		if fresh, err := s.forms.Get(ctx, formID); err == nil {
			version = fresh.Version
		}
	}
	return &UpdateResult{FormID: formID, UpdatedFields: changes.Fields(), Version: version}, nil
}

func versionMismatch(current, expected int64) error {
	return apperr.New(apperr.KindConflict, apperr.CodeVersionMismatch, "The form was modified by another request.").
		WithDetails(apperr.Details{"currentVersion": current, "expectedVersion": expected})
}

func (s *FormService) buildChanges(p models.FormPatch) (models.FormChanges, error) {
	var c models.FormChanges
	changed := false

	if p.Name.Set {
		if p.Name.Null || strings.TrimSpace(p.Name.Value) == "" {
			return c, apperr.InvalidInput("Form name cannot be empty.")
		}
		name := p.Name.Value
		c.Name = &name
		changed = true
	}
	if p.Description.Set {
		desc := p.Description.Value
		c.Description = &desc
		changed = true
	}
	if p.Elements.Set {
		if p.Elements.Null || p.Elements.Value == nil {
			return c, apperr.InvalidInput("Invalid elements structure. Each element must have a type and a label.")
		}
		if bad := invalidElements(p.Elements.Value); len(bad) > 0 {
			return c, elementsError("Invalid elements structure. Each element must have a type and a label.", bad)
		}
		c.Elements = p.Elements.Value
		changed = true
	}
	if p.Slug.Set {
		c.SlugSet = true
		if p.Slug.Present() && p.Slug.Value != "" {
			slug := p.Slug.Value
			c.Slug = &slug
		}
		changed = true
	}
	if p.IsPublished.Present() {
		published := p.IsPublished.Value
		c.IsPublished = &published
		changed = true
	}

	if !changed {
		return c, apperr.New(apperr.KindInvalidInput, apperr.CodeNothingToUpdate, "No fields to update were provided.")
	}
	c.UpdatedAt = s.now().UTC()
	return c, nil
}

type DeleteResult struct {
	FormID           string
	ResponsesDeleted int
	FilesDeleted     int
}

// Delete removes a form together with its responses and the files those
// responses reference. Only files answering a file element and stored under
// the signed-in respondent's own prefix are removed. Responses go first,
// then files, then the form, and every step tolerates work already done, so
// a failed delete can be retried.
// A file that cannot be removed is logged and left to the retention sweep.
func (s *FormService) Delete(ctx context.Context, callerID, formID string) (*DeleteResult, error) {
	form, err := s.owned(ctx, callerID, formID, "Forbidden. You can only delete your own forms.")
	if err != nil {
		return nil, err
	}
	log := zerolog.Ctx(ctx).With().Str("formId", formID).Logger()

	responses, err := s.responses.ListByForm(ctx, formID)
	if err != nil {
		return nil, apperr.Upstream("Failed to delete form.", err)
	}
	fileElements := form.FileElementIDs()
	var paths []string
	for _, r := range responses {
		paths = append(paths, respondentFiles(r, fileElements)...)
	}

	n, err := s.responses.DeleteByForm(ctx, formID)
	if err != nil {
		return nil, apperr.Upstream("Failed to delete form.", err)
	}
	res := &DeleteResult{FormID: formID, ResponsesDeleted: n}

	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		err := s.blobs.Delete(ctx, p)
		switch {
		case err == nil:
			res.FilesDeleted++
		case isNotFound(err):
		default:
			log.Warn().Err(err).Str("path", p).Msg("failed to delete response file")
		}
	}

	if err := s.forms.Delete(ctx, formID); err != nil && !isNotFound(err) {
		return nil, apperr.Upstream("Failed to delete form.", err)
	}
	log.Info().Int("responses", res.ResponsesDeleted).Int("files", res.FilesDeleted).Msg("form deleted")
	return res, nil
}

// respondentFiles returns the file references of r that its respondent owns.
// Anonymous responses own no files.
func respondentFiles(r models.Response, fileElements map[string]bool) []string {
	if r.RespondentID == nil || *r.RespondentID == "" {
		return nil
	}
	prefix := models.OwnerPrefix(*r.RespondentID)
	var paths []string
	for _, p := range r.FileRefPaths(fileElements) {
		if strings.HasPrefix(p, prefix) && !strings.Contains(p, "..") {
			paths = append(paths, p)
		}
	}
	return paths
}
