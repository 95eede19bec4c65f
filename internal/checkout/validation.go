package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldErrors maps a JSON field path (address.city) to a message.
type FieldErrors map[string]string

// NewValidator returns a validator that reports JSON field names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func fieldErrors(err error) FieldErrors {
	out := FieldErrors{}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		out["_"] = "invalid customer details"
		return out
	}
	for _, fe := range ve {
		key := fe.Namespace()
		if _, rest, ok := strings.Cut(key, "."); ok {
			key = rest
		}
		out[key] = messageForTag(fe.Tag(), fe.Param())
	}
	return out
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid e-mail address"
	case "max":
		return "must be at most " + param + " characters"
	case "len":
		return "must be exactly " + param + " characters"
	case "alpha":
		return "must contain letters only"
	default:
		return "is invalid"
	}
}
