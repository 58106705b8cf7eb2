package hooq

import (
	"fmt"
	"strings"
)

// Method is an HTTP method for an endpoint definition.
type Method string

const (
	GET    Method = "GET"
	POST   Method = "POST"
	PUT    Method = "PUT"
	PATCH  Method = "PATCH"
	DELETE Method = "DELETE"
)

// Query defines a read endpoint. Queries are restricted to GET and POST;
// the zero Method means GET.
type Query struct {
	Method Method

	// Path is a URL template with zero or more {name} tokens.
	Path string

	// Params describes path + query parameters. Optional.
	Params *Schema

	// Data describes the request body (POST queries only). Optional.
	Data *Schema

	// Response describes the expected response shape. Optional.
	Response *Schema

	// OnBeforeRequest runs after the client-global hooks and before any
	// call-site hook. It may mutate the request config in place.
	OnBeforeRequest BeforeRequestHook
}

// Mutation defines a write endpoint. Mutations allow POST, PUT, PATCH, and
// DELETE; the zero Method means POST.
type Mutation struct {
	Method Method

	// Path is a URL template with zero or more {name} tokens.
	Path string

	// Params, Data, and Response are optional schemas for path/query
	// params, the request body, and the response shape.
	Params   *Schema
	Data     *Schema
	Response *Schema

	// Multipart selects multipart/form-data encoding for the body.
	// Body validation is skipped for multipart payloads.
	Multipart bool

	// BoolStyle controls boolean serialization inside multipart bodies.
	BoolStyle BoolStyle

	// OnBeforeRequest runs after the client-global hooks and before any
	// call-site hook.
	OnBeforeRequest BeforeRequestHook
}

// QueryTree is a mapping whose values are either *Query leaves or nested
// QueryTree maps, at arbitrary depth. The built hook tree mirrors this
// shape exactly.
type QueryTree map[string]any

// MutationTree is the write-side counterpart of QueryTree.
type MutationTree map[string]any

// queryMethods and mutationMethods are the allowed method sets per side.
var (
	queryMethods    = map[Method]bool{GET: true, POST: true}
	mutationMethods = map[Method]bool{POST: true, PUT: true, PATCH: true, DELETE: true}
)

func (q *Query) method() Method {
	if q.Method == "" {
		return GET
	}
	return q.Method
}

func (m *Mutation) method() Method {
	if m.Method == "" {
		return POST
	}
	return m.Method
}

func validateQuery(path string, q *Query) error {
	if q.Path == "" {
		return fmt.Errorf("hooq: query %q: empty path", path)
	}
	if !queryMethods[q.method()] {
		return fmt.Errorf("hooq: query %q: method %s not allowed (queries accept GET and POST)", path, q.Method)
	}
	return nil
}

func validateMutation(path string, m *Mutation) error {
	if m.Path == "" {
		return fmt.Errorf("hooq: mutation %q: empty path", path)
	}
	if !mutationMethods[m.method()] {
		return fmt.Errorf("hooq: mutation %q: method %s not allowed (mutations accept POST, PUT, PATCH, DELETE)", path, m.Method)
	}
	return nil
}

// walkQueryTree rebuilds tree with each *Query leaf replaced by fn's result,
// preserving nesting. The leaf test (is the value a *Query?) is the single
// classification predicate for both traversal and rebuild.
func walkQueryTree(prefix string, tree QueryTree, fn func(path string, q *Query) (any, error)) (HookTree, error) {
	out := make(HookTree, len(tree))
	for key, node := range tree {
		path := joinPath(prefix, key)
		switch n := node.(type) {
		case *Query:
			if err := validateQuery(path, n); err != nil {
				return nil, err
			}
			leaf, err := fn(path, n)
			if err != nil {
				return nil, err
			}
			out[key] = leaf
		case QueryTree:
			sub, err := walkQueryTree(path, n, fn)
			if err != nil {
				return nil, err
			}
			out[key] = sub
		case map[string]any:
			sub, err := walkQueryTree(path, QueryTree(n), fn)
			if err != nil {
				return nil, err
			}
			out[key] = sub
		default:
			return nil, fmt.Errorf("hooq: query tree node %q: expected *Query or nested tree, got %T", path, node)
		}
	}
	return out, nil
}

func walkMutationTree(prefix string, tree MutationTree, fn func(path string, m *Mutation) (any, error)) (HookTree, error) {
	out := make(HookTree, len(tree))
	for key, node := range tree {
		path := joinPath(prefix, key)
		switch n := node.(type) {
		case *Mutation:
			if err := validateMutation(path, n); err != nil {
				return nil, err
			}
			leaf, err := fn(path, n)
			if err != nil {
				return nil, err
			}
			out[key] = leaf
		case MutationTree:
			sub, err := walkMutationTree(path, n, fn)
			if err != nil {
				return nil, err
			}
			out[key] = sub
		case map[string]any:
			sub, err := walkMutationTree(path, MutationTree(n), fn)
			if err != nil {
				return nil, err
			}
			out[key] = sub
		default:
			return nil, fmt.Errorf("hooq: mutation tree node %q: expected *Mutation or nested tree, got %T", path, node)
		}
	}
	return out, nil
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// HookTree mirrors a definition tree with each leaf replaced by a callable
// hook factory (QueryFunc or MutationFunc).
type HookTree map[string]any

// At returns the node at a dot-separated path, or nil if absent.
//
//	fn, ok := api.Query.At("admin.users.list").(hooq.QueryFunc)
func (t HookTree) At(path string) any {
	if path == "" {
		return nil
	}
	var node any = t
	for _, part := range strings.Split(path, ".") {
		sub, ok := node.(HookTree)
		if !ok {
			return nil
		}
		node, ok = sub[part]
		if !ok {
			return nil
		}
	}
	return node
}
