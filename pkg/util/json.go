package util

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// AnyToStruct converts a decoded JSON value (e.g. a JWT claim) or raw JSON
// bytes into T and validates the result.
func AnyToStruct[T any](obj interface{}) (*T, error) {
	var err error
	var asJson []byte
	asJson, ok := obj.([]byte)
	if !ok {
		asJson, err = json.Marshal(obj)
		if err != nil {
			return nil, err
		}
	}
	var result T
	err = json.Unmarshal(asJson, &result)
	if err != nil {
		return nil, err
	}
	err = validate.Struct(result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate checks the `validate` struct tags of v.
func Validate(v interface{}) error {
	return validate.Struct(v)
}
