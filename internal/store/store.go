// Package store persists payment intent records as documents keyed by
// indexed field values, with upsert and merge-only write paths.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"apna-payments/internal/config"
	internalErrors "apna-payments/internal/errors"
)

// Document is a flat set of named fields. Values are whatever JSON can carry.
type Document map[string]any

type Record struct {
	ID        string
	Fields    Document
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecordStore is safe for concurrent use. Writes are committed before the
// call returns and are atomic per key.
type RecordStore interface {
	// UpsertByKey merges doc into the record whose keyField equals keyValue,
	// creating it when none exists.
	UpsertByKey(ctx context.Context, keyField, keyValue string, doc Document) (*Record, error)
	// MergeByKey merges doc into an existing record and never creates one.
	MergeByKey(ctx context.Context, keyField, keyValue string, doc Document) (*Record, error)
	FindByKey(ctx context.Context, keyField, keyValue string) (*Record, error)
}

type Options struct {
	// Fields that may be used as keys. Each gets an index entry whenever a
	// stored document carries it.
	IndexedFields []string
	Policy        Policy
}

func DefaultOptions() Options {
	return Options{
		IndexedFields: []string{config.FieldUniqueCode, config.FieldPaymentRequestID},
		Policy: Policy{
			Immutable: []string{config.FieldUniqueCode},
			Monotonic: map[string][]string{
				"status": {config.StatusCredit},
			},
			// A paid intent stays bound to the request it was paid through.
			Sealed: map[string][]string{
				"status": {config.FieldPaymentRequestID},
			},
		},
	}
}

func (o Options) indexed(field string) bool {
	return slices.Contains(o.IndexedFields, field)
}

func (o Options) checkKey(keyField, keyValue string) error {
	if !o.indexed(keyField) {
		return fmt.Errorf("%w: %s", internalErrors.ErrUnindexedField, keyField)
	}
	if keyValue == "" {
		return fmt.Errorf("%w: empty value for key %s", internalErrors.ErrMalformedRequest, keyField)
	}
	return nil
}

// prepare normalizes doc and makes sure it carries keyField: keyValue.
func (o Options) prepare(keyField, keyValue string, doc Document) (Document, error) {
	if err := o.checkKey(keyField, keyValue); err != nil {
		return nil, err
	}
	normalized, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	if v, ok := normalized[keyField]; ok {
		if s, _ := keyString(v); s != keyValue {
			return nil, fmt.Errorf("%w: document %s %v does not match key %q", internalErrors.ErrMalformedRequest, keyField, v, keyValue)
		}
	}
	normalized[keyField] = keyValue
	return normalized, nil
}

// indexEntries lists the indexed field values a document carries, in a
// stable order.
func (o Options) indexEntries(doc Document) []indexEntry {
	var entries []indexEntry
	for _, field := range o.IndexedFields {
		v, ok := doc[field]
		if !ok {
			continue
		}
		if s, ok := keyString(v); ok && s != "" {
			entries = append(entries, indexEntry{field: field, value: s})
		}
	}
	slices.SortFunc(entries, func(a, b indexEntry) int {
		return strings.Compare(a.field, b.field)
	})
	return entries
}

type indexEntry struct {
	field string
	value string
}

// normalize round-trips doc through JSON so every backend compares and
// returns the same value types.
func normalize(doc Document) (Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalErrors.ErrMalformedRequest, err)
	}
	out := Document{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", internalErrors.ErrMalformedRequest, err)
	}
	return out, nil
}

func keyString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func (d Document) clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func (r *Record) clone() *Record {
	cp := *r
	cp.Fields = r.Fields.clone()
	return &cp
}
