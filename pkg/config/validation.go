package config

import (
	"reflect"

	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
)

// Validator is implemented by config structs with rules beyond
// `required`. Validate runs after the required check passes. A returned
// *errors.Error is passed through; anything else is wrapped with
// CodeValidation.
type Validator interface {
	Validate() error
}

// validate runs the two validation stages for a loaded config:
//
//  1. Every field tagged `required:"true"` must be non-zero. The first
//     empty field fails with CodeValidationRequired naming its Go path.
//  2. If cfg implements Validator, its Validate method is called.
func validate(cfg any, rv reflect.Value) error {
	err := walk(rv, "", "", func(f field) error {
		if f.tag.Get("required") == "true" && f.value.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired, "config: required field %q is empty", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if _, ok := sserr.AsError(err); ok {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: validation failed")
	}
	return nil
}
