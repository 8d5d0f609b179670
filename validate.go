package loyalty

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/loyalty/business"
)

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	//nolint:errcheck // tag name and func are static
	_ = v.RegisterValidation("business_category", func(fl validator.FieldLevel) bool {
		return business.Category(fl.Field().String()).Valid()
	})

	return v
}

// validateStruct runs the struct tags of s and maps failures onto
// ValidationError values.
func (l *Loyalty) validateStruct(s any) error {
	err := l.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	var errs MultiError
	for _, fe := range fieldErrs {
		errs.Add(ValidationError{Field: fe.Field(), Message: describe(fe)})
	}
	return errs.ErrorOrNil()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "business_category":
		names := make([]string, len(business.Categories))
		for i, c := range business.Categories {
			names[i] = string(c)
		}
		return "must be one of " + strings.Join(names, ", ")
	default:
		return "failed " + fe.Tag() + " check"
	}
}
