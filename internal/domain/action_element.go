package domain

import (
	"encoding/json"
	"errors"
)

// ActionElement validation errors
var (
	// ErrElementSemanticIDEmpty is returned when an action element has no semantic ID.
	ErrElementSemanticIDEmpty = errors.New("action element semantic ID cannot be empty")

	// ErrElementDataEmpty is returned when an action element has no data.
	ErrElementDataEmpty = errors.New("action element data cannot be empty")
)

// ActionElement is one page element the recorder discovered while executing a
// recording task. The semantic ID is the recorder's stable identifier for the
// element; persistence is an upsert keyed by (chunk, semantic ID), so
// duplicate or reordered delivery is safe.
type ActionElement struct {
	SemanticID string          `json:"semantic_id"`
	Data       json.RawMessage `json:"data"`
}

// Validate checks if the ActionElement has valid data.
func (e *ActionElement) Validate() error {
	if e.SemanticID == "" {
		return ErrElementSemanticIDEmpty
	}

	if len(e.Data) == 0 {
		return ErrElementDataEmpty
	}

	return nil
}

// ElementsFromMap converts the recorder's elements-by-semantic-ID map into a
// slice of ActionElements. Map iteration order does not matter because
// persistence is idempotent per key.
func ElementsFromMap(m map[string]json.RawMessage) []ActionElement {
	if len(m) == 0 {
		return nil
	}

	elements := make([]ActionElement, 0, len(m))
	for semanticID, data := range m {
		elements = append(elements, ActionElement{
			SemanticID: semanticID,
			Data:       data,
		})
	}
	return elements
}
