package models

import "time"

// ElementTypeFile marks an element answered by an uploaded file reference.
const ElementTypeFile = "file"

// Element is one question of a form. ID is supplied by the client and must
// stay stable for the life of the form since answers are keyed by it.
type Element struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Label         string   `json:"label"`
	Required      bool     `json:"required"`
	AcceptedTypes []string `json:"acceptedTypes,omitempty"`
}

type Form struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Elements       []Element `json:"elements"`
	Slug           *string   `json:"slug"`
	IsPublished    bool      `json:"isPublished"`
	ResponsesCount int       `json:"responsesCount"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// RequiredElementIDs returns the ids of required elements in form order.
func (f *Form) RequiredElementIDs() []string {
	var ids []string
	for _, el := range f.Elements {
		if el.Required {
			ids = append(ids, el.ID)
		}
	}
	return ids
}

// FileElementIDs returns the set of element ids whose type is file.
func (f *Form) FileElementIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, el := range f.Elements {
		if el.Type == ElementTypeFile {
			ids[el.ID] = true
		}
	}
	return ids
}

// FormInput is the body of a create request.
type FormInput struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Elements    []Element `json:"elements"`
	Slug        *string   `json:"slug"`
	IsPublished *bool     `json:"isPublished"`
}

// FormPatch is the body of an update request. Absent fields are left
// untouched; an explicit null clears fields that allow it.
type FormPatch struct {
	Name        Optional[string]    `json:"name"`
	Description Optional[string]    `json:"description"`
	Elements    Optional[[]Element] `json:"elements"`
	Slug        Optional[string]    `json:"slug"`
	IsPublished Optional[bool]      `json:"isPublished"`
}

// FormChanges is a validated patch as applied by a FormStore. Nil pointers
// are left untouched. Slug is written whenever SlugSet is true, a nil Slug
// clearing it.
type FormChanges struct {
	Name        *string
	Description *string
	Elements    []Element
	SlugSet     bool
	Slug        *string
	IsPublished *bool
	UpdatedAt   time.Time
}

// Fields lists the document fields written by the change set.
func (c FormChanges) Fields() []string {
	var fields []string
	if c.Name != nil {
		fields = append(fields, "name")
	}
	if c.Description != nil {
		fields = append(fields, "description")
	}
	if c.Elements != nil {
		fields = append(fields, "elements")
	}
	if c.SlugSet {
		fields = append(fields, "slug")
	}
	if c.IsPublished != nil {
		fields = append(fields, "isPublished")
	}
	return append(fields, "updatedAt")
}

// Apply writes the change set onto f, bumping its version.
func (c FormChanges) Apply(f *Form) {
	if c.Name != nil {
		f.Name = *c.Name
	}
	if c.Description != nil {
		f.Description = *c.Description
	}
	if c.Elements != nil {
		f.Elements = c.Elements
	}
	if c.SlugSet {
		f.Slug = c.Slug
	}
	if c.IsPublished != nil {
		f.IsPublished = *c.IsPublished
	}
	f.UpdatedAt = c.UpdatedAt
	f.Version++
}
