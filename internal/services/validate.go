package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		validate = v
	})
	return validate
}

// validateInput checks struct tags on v and aggregates every failing field
// into one ValidationError.
func validateInput(op string, v any) error {
	if problems := fieldErrors(v); len(problems) > 0 {
		return invalidAll(op, problems)
	}
	return nil
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max", "lte":
		if isString {
			return "length must be at most " + fe.Param()
		}
		if fe.Kind() == reflect.Slice {
			return "must have at most " + fe.Param() + " items"
		}
		return "must be at most " + fe.Param()
	case "min", "gte":
		if isString {
			return "length must be at least " + fe.Param()
		}
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "latitude", "longitude":
		return "must be a valid " + fe.Tag()
	case "e164":
		return "must be a phone number in E.164 format"
	}
	return "is invalid"
}

// fieldErrors returns one error per failing field of v.
func fieldErrors(v any) []error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return []error{err}
	}
	out := make([]error, 0, len(fes))
	for _, fe := range fes {
		out = append(out, fmt.Errorf("%s: %s", fieldPath(fe), fieldMessage(fe)))
	}
	return out
}

// invalidAll aggregates problems into one ValidationError.
func invalidAll(op string, problems []error) error {
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.Error()
	}
	return newErr(KindValidation, op, strings.Join(msgs, "; "), errors.Join(problems...))
}
