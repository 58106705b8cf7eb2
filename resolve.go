package hooq

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/schema"
)

// queryEncoder turns struct params into query values. Field names follow
// json tags, matching the validator's error reporting.
var queryEncoder = newQueryEncoder()

func newQueryEncoder() *schema.Encoder {
	enc := schema.NewEncoder()
	enc.SetAliasTag("json")
	return enc
}

// resolvePath substitutes {token} placeholders in template with the
// URL-escaped value of the matching key in source, consuming each matched
// key so it is not also sent as a query parameter. Resolution is
// best-effort: missing tokens and unused keys are left as they are.
func resolvePath(template string, source url.Values) string {
	if !strings.Contains(template, "{") {
		return template
	}
	for key := range source {
		token := "{" + key + "}"
		if strings.Contains(template, token) {
			template = strings.ReplaceAll(template, token, url.PathEscape(source.Get(key)))
			source.Del(key)
		}
	}
	return template
}

// paramsToValues normalizes caller-supplied params into url.Values.
// Maps are stringified entry by entry (slice values become repeated keys);
// structs go through the gorilla/schema encoder.
func paramsToValues(params any) (url.Values, error) {
	vals := url.Values{}
	switch p := params.(type) {
	case nil:
		return vals, nil
	case url.Values:
		for k, vs := range p {
			vals[k] = append([]string(nil), vs...)
		}
		return vals, nil
	case map[string]any:
		for k, v := range p {
			addParam(vals, k, v)
		}
		return vals, nil
	case map[string]string:
		for k, v := range p {
			vals.Set(k, v)
		}
		return vals, nil
	}

	rv := reflect.ValueOf(params)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return vals, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("hooq: unsupported params type %T", params)
	}
	if err := queryEncoder.Encode(rv.Interface(), vals); err != nil {
		return nil, fmt.Errorf("hooq: encode params: %w", err)
	}
	return vals, nil
}

func addParam(vals url.Values, key string, v any) {
	switch t := v.(type) {
	case nil:
		return
	case []any:
		for _, el := range t {
			addParam(vals, key, el)
		}
	case []string:
		for _, el := range t {
			vals.Add(key, el)
		}
	default:
		vals.Add(key, stringifyParam(v))
	}
}

func stringifyParam(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case float64:
		// JSON numbers decode as float64; render integral values without
		// a trailing ".0".
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
