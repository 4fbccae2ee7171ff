// Package repository implements the store contracts on top of OxiDB: one
// collection per document type and a bucket for uploaded files.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ceotind/sharp-form-backend/internal/oxidb"
	"github.com/ceotind/sharp-form-backend/internal/store"
)

// normalizeID converts the _id field from numeric (float64) to string
// since OxiDB returns auto-increment numeric IDs.
func normalizeID(doc map[string]any) {
	if id, ok := doc["_id"]; ok {
		switch v := id.(type) {
		case float64:
			doc["_id"] = strconv.FormatFloat(v, 'f', 0, 64)
		case int:
			doc["_id"] = strconv.Itoa(v)
		}
	}
}

// extractID gets the inserted document ID from an OxiDB insert response.
func extractID(result map[string]any) string {
	if id, ok := result["id"]; ok {
		switch v := id.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', 0, 64)
		}
	}
	return ""
}

// toNumericID converts a string ID to float64 for OxiDB queries.
func toNumericID(id string) any {
	if n, err := strconv.ParseFloat(id, 64); err == nil {
		return n
	}
	return id
}

// toDoc encodes v as a document, dropping the model's "id" which OxiDB
// keeps in "_id".
func toDoc(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	delete(doc, "id")
	delete(doc, "_id")
	return doc, nil
}

// fromDoc decodes an OxiDB document into out, exposing "_id" as "id".
func fromDoc(doc map[string]any, out any) error {
	normalizeID(doc)
	if id, ok := doc["_id"]; ok {
		doc["id"] = id
		delete(doc, "_id")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// translate maps OxiDB failures onto the store sentinels.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicate):
		return err
	case oxidb.IsNotFound(err):
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	case oxidb.IsDuplicate(err):
		return fmt.Errorf("%s: %w", op, store.ErrDuplicate)
	}
	var conflict *oxidb.TransactionConflictError
	if errors.As(err, &conflict) {
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
