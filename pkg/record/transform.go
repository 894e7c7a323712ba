package record

import (
	"context"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/askiada/go-etl/pkg/stream"
)

// DefaultTaxRate is the VAT rate applied by Tax when none is configured.
const DefaultTaxRate = 0.13

// Contains keeps the records whose field contains substr. Records without the field are dropped.
func Contains(field, substr string) stream.Transform[Record] {
	return stream.Filter(func(_ context.Context, rec Record) (bool, error) {
		value, ok := rec[field]
		if !ok {
			return false, nil
		}

		str, err := cast.ToStringE(value)
		if err != nil {
			return false, nil //nolint:nilerr // values that are not text never match
		}

		return strings.Contains(str, substr), nil
	})
}

// Equals keeps the records whose field is equal to value once both are turned into strings.
func Equals(field string, value any) stream.Transform[Record] {
	expected := cast.ToString(value)

	return stream.Filter(func(_ context.Context, rec Record) (bool, error) {
		got, ok := rec[field]
		if !ok {
			return false, nil
		}

		return cast.ToString(got) == expected, nil
	})
}

// GreaterThan keeps the records whose field is strictly greater than threshold.
// A missing field counts as zero. A value that is not a number is an error.
func GreaterThan(field string, threshold float64) stream.Transform[Record] {
	return stream.Filter(func(_ context.Context, rec Record) (bool, error) {
		if _, ok := rec[field]; !ok {
			return 0 > threshold, nil
		}

		value, err := rec.Float(field)
		if err != nil {
			return false, err
		}

		return value > threshold, nil
	})
}

func mapString(field string, fn func(string) string) stream.Transform[Record] {
	return stream.Map(func(_ context.Context, rec Record) (Record, error) {
		if _, ok := rec[field]; !ok {
			return rec, nil
		}

		value, err := rec.String(field)
		if err != nil {
			return nil, err
		}

		res := rec.Clone()
		res[field] = fn(value)

		return res, nil
	})
}

// Upper turns the field into upper case.
func Upper(field string) stream.Transform[Record] {
	return mapString(field, strings.ToUpper)
}

// Trim removes the leading and trailing spaces of the field.
func Trim(field string) stream.Transform[Record] {
	return mapString(field, strings.TrimSpace)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// Tax adds the tax on amountField to taxField and the amount with tax to totalField,
// both rounded to the cent. The input record is left untouched.
func Tax(amountField, taxField, totalField string, rate float64) stream.Transform[Record] {
	return stream.Map(func(_ context.Context, rec Record) (Record, error) {
		amount, err := rec.Float(amountField)
		if err != nil {
			return nil, err
		}

		tax := amount * rate
		res := rec.Clone()
		res[taxField] = round2(tax)
		res[totalField] = round2(amount + tax)

		return res, nil
	})
}

// Rename moves the value of from to to.
func Rename(from, to string) stream.Transform[Record] {
	return stream.Map(func(_ context.Context, rec Record) (Record, error) {
		value, ok := rec[from]
		if !ok {
			return rec, nil
		}

		res := rec.Clone()
		delete(res, from)
		res[to] = value

		return res, nil
	})
}

// Drop removes fields from the record.
func Drop(fields ...string) stream.Transform[Record] {
	return stream.Map(func(_ context.Context, rec Record) (Record, error) {
		res := rec.Clone()
		for _, field := range fields {
			delete(res, field)
		}

		return res, nil
	})
}

// Default sets field to value when it is missing or null.
func Default(field string, value any) stream.Transform[Record] {
	return stream.Map(func(_ context.Context, rec Record) (Record, error) {
		if current, ok := rec[field]; ok && current != nil {
			return rec, nil
		}

		res := rec.Clone()
		res[field] = value

		return res, nil
	})
}
