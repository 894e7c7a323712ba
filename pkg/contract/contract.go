package contract

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/askiada/go-etl/pkg/record"
	"github.com/askiada/go-etl/pkg/stream"
)

const dateLayout = "2006-01-02"

var ErrInvalidContract = errors.New("invalid contract")

// Field declares a field of the contract.
type Field struct {
	// Name is the name of the field in the output record.
	Name string `mapstructure:"name" validate:"required"`
	// From is the key read from the input record. It defaults to Name.
	From string `mapstructure:"from"`
	// Type is one of string, int, float, bool or date. Values are coerced to it. Empty keeps the raw value.
	Type string `mapstructure:"type" validate:"omitempty,oneof=string int float bool date"`
	// Rules are validator tags, "required,email" for instance.
	Rules string `mapstructure:"rules"`
	// Default is used when the input value is missing or null.
	Default any `mapstructure:"default"`
}

func (f Field) source() string {
	if f.From != "" {
		return f.From
	}

	return f.Name
}

// FieldError describes why a field breaks the contract.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ValidationError lists the fields of a record breaking the contract.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	messages := make([]string, len(e.Fields))
	for i, field := range e.Fields {
		messages[i] = field.Field + ": " + field.Message
	}

	return "validation failed: " + strings.Join(messages, "; ")
}

// Contract validates records against its fields.
type Contract struct {
	fields   []Field
	rules    map[string]any
	validate *validator.Validate
}

// New creates a contract. The field definitions are checked first.
func New(fields ...Field) (*Contract, error) {
	if len(fields) == 0 {
		return nil, errors.Wrap(ErrInvalidContract, "no field")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	err := validate.RegisterValidation("notfuture", notFuture)
	if err != nil {
		return nil, errors.Wrap(err, "unable to register notfuture validation")
	}

	rules := make(map[string]any, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		err := validate.Struct(field)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidContract, "field %q: %v", field.Name, err)
		}
		if _, ok := seen[field.Name]; ok {
			return nil, errors.Wrapf(ErrInvalidContract, "duplicate field %q", field.Name)
		}
		seen[field.Name] = struct{}{}

		if field.Rules != "" {
			rules[field.Name] = field.Rules
		}
	}

	return &Contract{fields: fields, rules: rules, validate: validate}, nil
}

// Apply returns a new record holding only the contract fields, coerced to their types.
// It fails with a *ValidationError when rec breaks the contract.
func (c *Contract) Apply(ctx context.Context, rec record.Record) (record.Record, error) {
	out := make(record.Record, len(c.fields))
	fieldErrs := []FieldError{}

	for _, field := range c.fields {
		raw, ok := rec[field.source()]
		if !ok || raw == nil {
			raw = field.Default
		}

		if raw == nil {
			out[field.Name] = nil

			continue
		}

		value, err := coerce(field.Type, raw)
		if err != nil {
			fieldErrs = append(fieldErrs, FieldError{
				Field:   field.Name,
				Tag:     "type",
				Message: "must be a valid " + field.Type,
			})

			continue
		}

		out[field.Name] = value
	}

	for name, err := range c.validate.ValidateMapCtx(ctx, out, c.rules) {
		if isTypeError(fieldErrs, name) {
			continue
		}

		fieldErrs = append(fieldErrs, fieldError(name, err))
	}

	if len(fieldErrs) > 0 {
		sort.Slice(fieldErrs, func(i, j int) bool {
			return fieldErrs[i].Field < fieldErrs[j].Field
		})

		return nil, &ValidationError{Fields: fieldErrs}
	}

	return out, nil
}

// Transform returns the contract as a pipeline transform.
func (c *Contract) Transform() stream.Transform[record.Record] {
	return stream.Map(c.Apply)
}

func isTypeError(fieldErrs []FieldError, name string) bool {
	for _, fieldErr := range fieldErrs {
		if fieldErr.Field == name {
			return true
		}
	}

	return false
}

func coerce(kind string, raw any) (any, error) {
	switch kind {
	case "string":
		return cast.ToStringE(raw)
	case "int":
		return cast.ToInt64E(raw)
	case "float":
		return cast.ToFloat64E(raw)
	case "bool":
		return cast.ToBoolE(raw)
	case "date":
		date, err := cast.ToTimeE(raw)
		if err != nil {
			return nil, err
		}

		return date.Format(dateLayout), nil
	default:
		return raw, nil
	}
}

func fieldError(name string, err any) FieldError {
	res := FieldError{Field: name, Tag: "invalid", Message: "is invalid"}

	fErr, ok := err.(error)
	if !ok {
		return res
	}

	var validationErrs validator.ValidationErrors
	if errors.As(fErr, &validationErrs) && len(validationErrs) > 0 {
		res.Tag = validationErrs[0].Tag()
		res.Message = formatValidationError(validationErrs[0])
	}

	return res
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lt":
		return "must be less than " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + e.Param()
	case "notfuture":
		return "must not be in the future"
	default:
		return fmt.Sprintf("failed on the %q rule", e.Tag())
	}
}

// notFuture accepts dates up to the end of the current day.
func notFuture(fl validator.FieldLevel) bool {
	date, err := cast.ToTimeE(fl.Field().Interface())
	if err != nil {
		return false
	}

	now := time.Now()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())

	return date.Before(endOfDay)
}
