// Package hooq builds schema-validated, reactive HTTP clients from
// declarative endpoint definitions.
//
// A client is described by two trees: queries (reads) and mutations
// (writes). Each leaf carries an HTTP method, a URL template with {name}
// tokens, optional schemas for params, body, and response, and an optional
// before-request hook. Build walks the trees and returns a mirror tree of
// callable hook factories.
//
// Invoking a hook performs the request lifecycle: params and body are
// validated against their schemas, the path template is resolved (consuming
// matched params), the before-request chain runs in the fixed order
// client-global, definition-level, call-site, and the response is validated
// against the response schema. Outcomes land in reactive Cell state
// (Result, ErrMessage, Loading, Done) that callers can read or watch.
//
// Query hooks run automatically on creation and re-run, debounced, when a
// reactive input changes; a newer run cancels the one in flight and the
// cancellation stays silent. Mutation hooks run only on explicit Mutate
// calls and track upload progress. Bodies can be sent as JSON or as a
// multipart form with bracket-path keys (user[address][0][city]).
//
// When a CSRF refresh endpoint is configured, 403/419 failures trigger a
// single-flight token refresh followed by exactly one replay of the
// original request.
package hooq
