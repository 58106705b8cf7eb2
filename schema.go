package hooq

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. Field names in error reports
// come from json tags so they match the wire format.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Schema describes the expected shape of params, a request body, or a
// response payload. It carries a prototype Go type; parsing a value decodes
// it into a fresh instance of that type and runs struct validation over it.
//
// A nil *Schema passes values through unchanged.
type Schema struct {
	typ reflect.Type
}

// SchemaOf creates a Schema for the struct type T. Validation rules are the
// usual `validate` struct tags; reported field names follow json tags.
//
//	type User struct {
//	    Name  string `json:"name" validate:"required"`
//	    Email string `json:"email" validate:"required,email"`
//	}
//
//	def := &hooq.Query{Path: "/users/{id}", Response: hooq.SchemaOf[User]()}
func SchemaOf[T any]() *Schema {
	return &Schema{typ: reflect.TypeOf((*T)(nil)).Elem()}
}

// Parse validates value against the schema and returns the parsed form
// (a pointer to a fresh instance of the schema type). Values that are not
// already of the schema type are converted through a JSON round-trip, so
// maps, json.RawMessage, and raw bytes are all accepted.
//
// On failure Parse returns a *ValidationError.
func (s *Schema) Parse(value any) (any, error) {
	if s == nil {
		return value, nil
	}

	out := reflect.New(s.typ)

	switch v := value.(type) {
	case nil:
		// Validate the zero value; required fields will fail.
	case json.RawMessage:
		if err := json.Unmarshal(v, out.Interface()); err != nil {
			return nil, decodeIssue(err)
		}
	case []byte:
		if err := json.Unmarshal(v, out.Interface()); err != nil {
			return nil, decodeIssue(err)
		}
	default:
		rv := reflect.ValueOf(value)
		switch {
		case rv.Type() == reflect.PointerTo(s.typ):
			out = rv
		case rv.Type() == s.typ:
			out.Elem().Set(rv)
		default:
			data, err := json.Marshal(value)
			if err != nil {
				return nil, decodeIssue(err)
			}
			if err := json.Unmarshal(data, out.Interface()); err != nil {
				return nil, decodeIssue(err)
			}
		}
	}

	if err := s.check(out.Interface()); err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// check runs struct validation. Non-struct schema types (slices, scalars)
// have no tag rules to enforce and pass once decoded.
func (s *Schema) check(ptr any) error {
	typ := s.typ
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil
	}

	err := validate.Struct(ptr)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return newValidationError(verrs)
	}
	return err
}

// decodeIssue wraps a JSON decode failure as a single-issue ValidationError
// so malformed payloads route through the same reporting as tag failures.
func decodeIssue(err error) *ValidationError {
	return &ValidationError{Issues: []FieldIssue{{
		Path:    "",
		Message: fmt.Sprintf("invalid value: %v", err),
	}}}
}
