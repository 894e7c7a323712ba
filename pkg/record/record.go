// Package record defines the generic record handled by the CLI jobs and the transforms working on it.
package record

import (
	"maps"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

var (
	ErrMissingField = errors.New("missing field")
	ErrInvalidField = errors.New("invalid field")
)

// Record is a set of named values, as decoded from JSON or CSV.
type Record map[string]any

// Clone returns a shallow copy of the record. A nil record clones to an empty one.
func (r Record) Clone() Record {
	if r == nil {
		return Record{}
	}

	return maps.Clone(r)
}

// String returns the value of field as a string.
func (r Record) String(field string) (string, error) {
	value, ok := r[field]
	if !ok {
		return "", errors.Wrapf(ErrMissingField, "%q", field)
	}

	res, err := cast.ToStringE(value)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidField, "%q: %v", field, err)
	}

	return res, nil
}

// Float returns the value of field as a float64. Numeric strings are accepted.
func (r Record) Float(field string) (float64, error) {
	value, ok := r[field]
	if !ok {
		return 0, errors.Wrapf(ErrMissingField, "%q", field)
	}

	res, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidField, "%q: %v", field, err)
	}

	return res, nil
}
