package hooq

import (
	"context"
	"encoding/json"
	"net/http"
)

// endpoint is the pipeline's flattened view of a Query or Mutation leaf.
type endpoint struct {
	name      string // dotted tree path
	method    Method
	path      string
	params    *Schema
	data      *Schema
	response  *Schema
	multipart bool
	boolStyle BoolStyle
	hook      BeforeRequestHook // definition-level
}

func (q *Query) endpoint(name string) endpoint {
	return endpoint{
		name:     name,
		method:   q.method(),
		path:     q.Path,
		params:   q.Params,
		data:     q.Data,
		response: q.Response,
		hook:     q.OnBeforeRequest,
	}
}

func (m *Mutation) endpoint(name string) endpoint {
	return endpoint{
		name:      name,
		method:    m.method(),
		path:      m.Path,
		params:    m.Params,
		data:      m.Data,
		response:  m.Response,
		multipart: m.Multipart,
		boolStyle: m.BoolStyle,
		hook:      m.OnBeforeRequest,
	}
}

// call bundles one invocation's inputs.
type call struct {
	params   any
	data     any
	hook     BeforeRequestHook // call-site level
	progress func(percent int)
}

// execute runs the request pipeline for one invocation: validate inputs,
// build the config, thread the hook chain, dispatch, and decode or
// validate the response. Validation failures abort before any network call.
func (c *Client) execute(ctx context.Context, ep endpoint, in call) (any, error) {
	params := in.params
	if ep.params != nil && params != nil {
		parsed, err := ep.params.Parse(params)
		if err != nil {
			return nil, err
		}
		// Map params keep their original shape for path resolution; the
		// parsed struct only backs validation.
		if _, isMap := params.(map[string]any); !isMap {
			params = parsed
		}
	}

	data := in.data
	if ep.data != nil && !ep.multipart && data != nil {
		parsed, err := ep.data.Parse(data)
		if err != nil {
			return nil, err
		}
		if _, isMap := data.(map[string]any); !isMap {
			data = parsed
		}
	}

	vals, err := paramsToValues(params)
	if err != nil {
		return nil, err
	}

	cfg := &RequestConfig{
		Method:           string(ep.method),
		Headers:          make(http.Header),
		OnUploadProgress: in.progress,
	}

	path := ep.path
	if ep.method != GET {
		// Non-GET calls may carry path params in a "params" sub-object of
		// the body, which is removed from the body after extraction.
		// Leftover entries become query-string params.
		if m, sub, ok := bodyParams(data); ok {
			pv, err := paramsToValues(sub)
			if err != nil {
				return nil, err
			}
			data = stripBodyParams(m)
			path = resolvePath(path, pv)
			for k, vs := range pv {
				vals[k] = append(vals[k], vs...)
			}
		}
	}
	cfg.URL = resolvePath(path, vals)
	cfg.Params = vals

	if ep.multipart {
		fields, err := encodeForm(data, ep.boolStyle)
		if err != nil {
			return nil, err
		}
		if fields == nil {
			fields = []FormField{}
		}
		cfg.Form = fields
	} else if data != nil {
		cfg.Body = data
	}

	if ep.hook != nil {
		cfg.hooks = append(cfg.hooks, ep.hook)
	}
	if in.hook != nil {
		cfg.hooks = append(cfg.hooks, in.hook)
	}

	resp, err := c.transport.Do(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if ep.response != nil {
		return ep.response.Parse(json.RawMessage(resp.Body))
	}
	if len(resp.Body) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		// Non-JSON payloads come back as raw text.
		return string(resp.Body), nil
	}
	return out, nil
}

// bodyParams returns the body map and its "params" sub-object, if both exist.
func bodyParams(data any) (body map[string]any, params any, ok bool) {
	m, isMap := data.(map[string]any)
	if !isMap {
		return nil, nil, false
	}
	sub, exists := m["params"]
	if !exists {
		return nil, nil, false
	}
	return m, sub, true
}

// stripBodyParams returns a shallow copy of the body without its "params"
// key, leaving the caller's map untouched.
func stripBodyParams(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "params" {
			continue
		}
		out[k] = v
	}
	return out
}
