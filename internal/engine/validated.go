package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// issue messages use the json field names the payload actually has
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return v
}

// DecodeInto maps the loose payload onto a typed struct via a JSON
// round-trip. Type mismatches come back as validation errors so the
// status event reads "field: expected string" instead of a raw
// unmarshal error.
func DecodeInto[T any](data JobData) (T, error) {
	var out T

	raw, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := typeErr.Field
			if field == "" {
				field = "payload"
			}
			return out, ValidationError(fmt.Sprintf("%s: expected %s, got %s", field, typeErr.Type.String(), typeErr.Value))
		}
		return out, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	return out, nil
}

// TypedAction validates the payload against a declared schema (struct
// tags) before running. The schema lives in the type parameter, so
// re-validation on every execution is cheap and always performed.
type TypedAction[T any] struct {
	ActionName string
	Run        func(ctx context.Context, input T, deps *Deps, actx *ActionContext) (JobData, error)
}

func (a *TypedAction[T]) Name() string { return a.ActionName }

func (a *TypedAction[T]) Execute(ctx context.Context, data JobData, deps *Deps, actx *ActionContext) (JobData, error) {
	typed, err := DecodeInto[T](data)
	if err != nil {
		return nil, err
	}

	if err := validate.Struct(typed); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			issues := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				issues = append(issues, describeIssue(fe))
			}
			return nil, ValidationError(issues...)
		}
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	return a.Run(ctx, typed, deps, actx)
}

func describeIssue(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param()
	case "url":
		return field + " must be a valid URL"
	case "oneof":
		return field + " must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return field + " failed " + fe.Tag() + " validation"
	}
}
