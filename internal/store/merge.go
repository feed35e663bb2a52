package store

import (
	"fmt"
	"reflect"
	"slices"

	internalErrors "apna-payments/internal/errors"
)

// Policy constrains how incoming fields overwrite stored ones.
type Policy struct {
	// Immutable fields keep their first value; a different value is an error.
	Immutable []string
	// Monotonic maps a field to its terminal values. Once a field holds a
	// terminal value, later writes of a different value are ignored.
	Monotonic map[string][]string
	// Sealed maps a monotonic field to fields that become immutable once it
	// holds a terminal value.
	Sealed map[string][]string
}

// Merge applies incoming over existing and reports whether the result
// differs from existing. Neither input is modified.
func Merge(existing, incoming Document, p Policy) (Document, bool, error) {
	merged := existing.clone()
	changed := false
	sealed := p.sealed(existing)

	for field, value := range incoming {
		current, present := merged[field]
		if present && reflect.DeepEqual(current, value) {
			continue
		}
		if present && (slices.Contains(p.Immutable, field) || slices.Contains(sealed, field)) {
			return nil, false, fmt.Errorf("%w: %s", internalErrors.ErrImmutableField, field)
		}
		if present && p.terminal(field, current) {
			continue
		}
		merged[field] = value
		changed = true
	}

	return merged, changed, nil
}

func (p Policy) terminal(field string, value any) bool {
	terminals, ok := p.Monotonic[field]
	if !ok {
		return false
	}
	s, ok := keyString(value)
	return ok && slices.Contains(terminals, s)
}

func (p Policy) sealed(doc Document) []string {
	var fields []string
	for field, dependents := range p.Sealed {
		if p.terminal(field, doc[field]) {
			fields = append(fields, dependents...)
		}
	}
	return fields
}
