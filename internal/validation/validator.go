package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

var pincodePattern = regexp.MustCompile(`^\d{6}$`)

// New returns a validator that reports fields by their JSON names and knows
// the order-specific rules.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validatorv10.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("pincode", func(fl validatorv10.FieldLevel) bool {
		return pincodePattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})

	// the per-size quantities must add up to the ordered quantity
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)
	if req.Quantity < 10 || len(req.Variations) == 0 {
		return // already reported by field rules
	}

	sum := 0
	for _, v := range req.Variations {
		for _, s := range v.Sizes {
			sum += s.Quantity
		}
	}
	if sum != req.Quantity {
		sl.ReportError(req.Quantity, "quantity", "Quantity", "sum_matches", fmt.Sprint(sum))
	}
}

// Details flattens a validation error into human readable messages such as
// "customer.pincode must be a 6-digit number".
func Details(err error) []string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		out = append(out, message(fe))
	}
	return out
}

func message(fe validatorv10.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "email":
		return field + " is invalid"
	case "pincode":
		return field + " must be a 6-digit number"
	case "sum_matches":
		return fmt.Sprintf("sum of variation quantities (%s) must equal quantity", fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be a whole number >= %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed the %q rule", field, fe.Tag())
}
