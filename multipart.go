package hooq

import (
	"fmt"
	"io"
	"mime/multipart"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BoolStyle controls how booleans are serialized inside multipart bodies.
type BoolStyle int

const (
	// BoolTrueFalse serializes booleans as "true"/"false". The default.
	BoolTrueFalse BoolStyle = iota

	// BoolNumeric serializes booleans as "1"/"0".
	BoolNumeric
)

// File is a binary part in a multipart body.
type File struct {
	// Name is the filename reported to the server.
	Name string

	// ContentType is optional; the part is written as
	// application/octet-stream when empty.
	ContentType string

	Content io.Reader
}

// FormField is one flattened key/value pair of a multipart body.
// Exactly one of Value or File is meaningful.
type FormField struct {
	Key   string
	Value string
	File  *File
}

// encodeForm recursively flattens data into bracket-path form fields:
// nested objects become parent[child], slice elements become parent[i].
// Files are kept as binary parts, time values serialize to RFC 3339,
// booleans follow style, and nil becomes the literal string "null".
// Absent map keys produce no field at any depth.
//
// Map keys already in bracket form ("image[file]") pass through verbatim,
// so flat and nested notations can coexist in one payload.
func encodeForm(data any, style BoolStyle) ([]FormField, error) {
	var fields []FormField
	if data == nil {
		return fields, nil
	}
	m, ok := asFormMap(data)
	if !ok {
		return nil, fmt.Errorf("hooq: multipart body must be a map or struct, got %T", data)
	}
	for _, k := range sortedKeys(m) {
		if err := flattenField(&fields, k, m[k], style); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// flattenField appends the fields for one value under key.
// File, time, and bool checks come before generic recursion: files and
// times are structs themselves and must not be walked field by field.
func flattenField(fields *[]FormField, key string, v any, style BoolStyle) error {
	switch t := v.(type) {
	case nil:
		*fields = append(*fields, FormField{Key: key, Value: "null"})
		return nil
	case *File:
		if t == nil {
			*fields = append(*fields, FormField{Key: key, Value: "null"})
			return nil
		}
		*fields = append(*fields, FormField{Key: key, File: t})
		return nil
	case File:
		*fields = append(*fields, FormField{Key: key, File: &t})
		return nil
	case time.Time:
		*fields = append(*fields, FormField{Key: key, Value: t.Format(time.RFC3339)})
		return nil
	case bool:
		*fields = append(*fields, FormField{Key: key, Value: formatBool(t, style)})
		return nil
	case string:
		*fields = append(*fields, FormField{Key: key, Value: t})
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			*fields = append(*fields, FormField{Key: key, Value: "null"})
			return nil
		}
		return flattenField(fields, key, rv.Elem().Interface(), style)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			childKey := key + "[" + strconv.Itoa(i) + "]"
			if err := flattenField(fields, childKey, rv.Index(i).Interface(), style); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map, reflect.Struct:
		m, ok := asFormMap(v)
		if !ok {
			return fmt.Errorf("hooq: unsupported multipart value at %q: %T", key, v)
		}
		for _, k := range sortedKeys(m) {
			if err := flattenField(fields, key+"["+k+"]", m[k], style); err != nil {
				return err
			}
		}
		return nil
	default:
		*fields = append(*fields, FormField{Key: key, Value: fmt.Sprint(v)})
		return nil
	}
}

func formatBool(b bool, style BoolStyle) string {
	if style == BoolNumeric {
		if b {
			return "1"
		}
		return "0"
	}
	return strconv.FormatBool(b)
}

// asFormMap views a map or struct as map[string]any without JSON
// round-tripping, so File values survive.
func asFormMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		out := make(map[string]any, rv.Len())
		for _, k := range rv.MapKeys() {
			out[k.String()] = rv.MapIndex(k).Interface()
		}
		return out, true
	case reflect.Struct:
		if _, isTime := rv.Interface().(time.Time); isTime {
			return nil, false
		}
		out := make(map[string]any)
		structToMap(rv, out)
		return out, true
	}
	return nil, false
}

func structToMap(rv reflect.Value, out map[string]any) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if f.Anonymous && name == "" {
			fv := rv.Field(i)
			if fv.Kind() == reflect.Struct {
				structToMap(fv, out)
				continue
			}
		}
		if name == "" {
			name = f.Name
		}
		fv := rv.Field(i)
		if strings.Contains(opts, "omitempty") && fv.IsZero() {
			continue
		}
		out[name] = fv.Interface()
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeForm emits fields into a multipart writer.
func writeForm(w *multipart.Writer, fields []FormField) error {
	for _, f := range fields {
		if f.File == nil {
			if err := w.WriteField(f.Key, f.Value); err != nil {
				return err
			}
			continue
		}
		var part io.Writer
		var err error
		if f.File.ContentType == "" {
			part, err = w.CreateFormFile(f.Key, f.File.Name)
		} else {
			part, err = createPart(w, f.Key, f.File.Name, f.File.ContentType)
		}
		if err != nil {
			return err
		}
		if f.File.Content != nil {
			if _, err := io.Copy(part, f.File.Content); err != nil {
				return err
			}
		}
	}
	return nil
}

func createPart(w *multipart.Writer, key, filename, contentType string) (io.Writer, error) {
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, key, filename)}
	h["Content-Type"] = []string{contentType}
	return w.CreatePart(h)
}
