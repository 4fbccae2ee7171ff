package models

import (
	"strings"
	"time"
)

// Response is a submission stored under its form. Timestamp is epoch
// milliseconds.
type Response struct {
	ID              string         `json:"id"`
	FormID          string         `json:"formId"`
	Answers         map[string]any `json:"answers"`
	Timestamp       int64          `json:"timestamp"`
	RespondentID    *string        `json:"respondentId"`
	RespondentEmail *string        `json:"respondentEmail"`
}

// ResponseView is the listing representation with a calendar timestamp.
type ResponseView struct {
	ID              string         `json:"id"`
	FormID          string         `json:"formId"`
	Answers         map[string]any `json:"answers"`
	Timestamp       time.Time      `json:"timestamp"`
	RespondentID    *string        `json:"respondentId"`
	RespondentEmail *string        `json:"respondentEmail"`
}

func (r Response) View() ResponseView {
	return ResponseView{
		ID:              r.ID,
		FormID:          r.FormID,
		Answers:         r.Answers,
		Timestamp:       time.UnixMilli(r.Timestamp).UTC(),
		RespondentID:    r.RespondentID,
		RespondentEmail: r.RespondentEmail,
	}
}

// FileRefPaths returns the blob paths of every answer to one of elements
// that is a structured file reference, e.g.
// {"fileName": "...", "path": "uploads/u1/x.pdf"}.
func (r Response) FileRefPaths(elements map[string]bool) []string {
	var paths []string
	for id, v := range r.Answers {
		if !elements[id] {
			continue
		}
		switch ref := v.(type) {
		case map[string]any:
			paths = appendRefPath(paths, ref)
		case []any:
			for _, item := range ref {
				if m, ok := item.(map[string]any); ok {
					paths = appendRefPath(paths, m)
				}
			}
		}
	}
	return paths
}

func appendRefPath(paths []string, ref map[string]any) []string {
	p, _ := ref["path"].(string)
	if strings.HasPrefix(p, UploadsPrefix) {
		paths = append(paths, p)
	}
	return paths
}
