package jsonstore

import (
	"encoding/json"
	"fmt"
)

// Decode converts raw documents into typed models via a JSON round-trip.
// Unknown fields are dropped; missing fields take zero values.
func Decode[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for i, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode document %d: %w", i, err)
		}
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode document %d: %w", i, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// DecodeOne converts a single raw document into a typed model.
func DecodeOne[T any](doc Document) (T, error) {
	var item T
	raw, err := json.Marshal(doc)
	if err != nil {
		return item, fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return item, fmt.Errorf("decode document: %w", err)
	}
	return item, nil
}

// Encode converts typed models into raw documents.
func Encode[T any](items []T) ([]Document, error) {
	out := make([]Document, 0, len(items))
	for i, item := range items {
		doc, err := EncodeOne(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// EncodeOne converts a single typed model into a raw document.
func EncodeOne[T any](item T) (Document, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return doc, nil
}
