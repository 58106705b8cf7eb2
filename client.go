package hooq

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
)

// Default XSRF cookie/header names, matching the cookie-based convention
// maintained by typical CSRF refresh endpoints.
const (
	defaultXSRFCookie = "XSRF-TOKEN"
	defaultXSRFHeader = "X-XSRF-TOKEN"
)

// Client assembles a typed API client from declarative query and mutation
// trees. Configure it with the With* builders, then call Build.
//
//	api, err := hooq.NewClient("https://api.example.com").
//	    WithHeader("Accept-Language", "en").
//	    WithCSRFRefreshEndpoint("/csrf-cookie").
//	    WithQueries(hooq.QueryTree{
//	        "users": hooq.QueryTree{
//	            "get": &hooq.Query{Path: "/users/{id}", Response: hooq.SchemaOf[User]()},
//	        },
//	    }).
//	    Build()
type Client struct {
	baseURL           string
	headers           http.Header
	httpClient        *http.Client
	withCredentials   bool
	withXSRF          bool
	csrfEndpoint      string
	before            []BeforeRequestHook
	onStart           LifecycleHook
	onFinish          LifecycleHook
	onError           ErrorHandler
	onValidationError ValidationErrorHandler
	logger            *slog.Logger
	queries           QueryTree
	mutations         MutationTree

	transport *transport
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		headers: make(http.Header),
	}
}

// WithHeader adds a default header sent with every request.
// Per-request headers set by hooks win on conflict.
func (c *Client) WithHeader(key, value string) *Client {
	c.headers.Set(key, value)
	return c
}

// WithHeaders adds a set of default headers.
func (c *Client) WithHeaders(headers map[string]string) *Client {
	for k, v := range headers {
		c.headers.Set(k, v)
	}
	return c
}

// WithHTTPClient sets a custom *http.Client, e.g. to configure timeouts or
// a custom transport.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithCredentials enables a cookie jar so session cookies persist across
// requests.
func (c *Client) WithCredentials() *Client {
	c.withCredentials = true
	return c
}

// WithXSRFToken mirrors the XSRF-TOKEN cookie into the X-XSRF-TOKEN header
// on every request. Implies WithCredentials.
func (c *Client) WithXSRFToken() *Client {
	c.withXSRF = true
	c.withCredentials = true
	return c
}

// WithCSRFRefreshEndpoint enables CSRF recovery: on a 403 or 419 response
// the client refreshes the token via a GET to endpoint and replays the
// failed request once. Concurrent failures share a single refresh call.
// Implies WithCredentials.
func (c *Client) WithCSRFRefreshEndpoint(endpoint string) *Client {
	c.csrfEndpoint = endpoint
	c.withCredentials = true
	return c
}

// WithBeforeRequest adds a client-global before-request hook. Global hooks
// run before definition-level and call-site hooks, in the order added.
func (c *Client) WithBeforeRequest(hook BeforeRequestHook) *Client {
	c.before = append(c.before, hook)
	return c
}

// WithOnStartRequest sets a lifecycle hook invoked when dispatch begins,
// after the full before-request chain.
func (c *Client) WithOnStartRequest(hook LifecycleHook) *Client {
	c.onStart = hook
	return c
}

// WithOnFinishRequest sets a lifecycle hook invoked when dispatch ends,
// regardless of outcome.
func (c *Client) WithOnFinishRequest(hook LifecycleHook) *Client {
	c.onFinish = hook
	return c
}

// WithOnError sets the client-global error callback. It fires after any
// call-site OnError for the same failure.
func (c *Client) WithOnError(fn ErrorHandler) *Client {
	c.onError = fn
	return c
}

// WithOnValidationError sets the client-global validation-error callback.
func (c *Client) WithOnValidationError(fn ValidationErrorHandler) *Client {
	c.onValidationError = fn
	return c
}

// WithLogger sets a custom logger. If not set, slog.Default() is used.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithQueries sets the query definition tree.
func (c *Client) WithQueries(tree QueryTree) *Client {
	c.queries = tree
	return c
}

// WithMutations sets the mutation definition tree.
func (c *Client) WithMutations(tree MutationTree) *Client {
	c.mutations = tree
	return c
}

// API is the built client surface: hook trees mirroring the definition
// trees, with a callable hook factory at every leaf.
type API struct {
	Query    HookTree
	Mutation HookTree
}

// QueryAt returns the query hook factory at a dot-separated path.
func (a *API) QueryAt(path string) (QueryFunc, bool) {
	fn, ok := a.Query.At(path).(QueryFunc)
	return fn, ok
}

// MutationAt returns the mutation hook factory at a dot-separated path.
func (a *API) MutationAt(path string) (MutationFunc, bool) {
	fn, ok := a.Mutation.At(path).(MutationFunc)
	return fn, ok
}

// Build validates the definition trees and produces the hook trees.
// The output mirrors the input shape exactly: a definition at
// queries["a"]["b"]["c"] yields a QueryFunc at api.Query.At("a.b.c").
func (c *Client) Build() (*API, error) {
	if c.baseURL == "" {
		return nil, errors.New("hooq: base URL is required")
	}

	hc := c.httpClient
	if hc == nil {
		hc = &http.Client{}
	}
	if c.withCredentials && hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}

	c.transport = &transport{
		baseURL:    c.baseURL,
		client:     hc,
		headers:    c.headers,
		xsrf:       c.withXSRF,
		xsrfCookie: defaultXSRFCookie,
		xsrfHeader: defaultXSRFHeader,
		before:     c.before,
		onStart:    c.onStart,
		onFinish:   c.onFinish,
		logger:     c.logger,
	}
	if c.csrfEndpoint != "" {
		c.transport.csrf = &csrfGuard{endpoint: c.csrfEndpoint}
	}

	queries, err := walkQueryTree("", c.queries, func(path string, def *Query) (any, error) {
		return c.queryFunc(path, def), nil
	})
	if err != nil {
		return nil, err
	}
	mutations, err := walkMutationTree("", c.mutations, func(path string, def *Mutation) (any, error) {
		return c.mutationFunc(path, def), nil
	})
	if err != nil {
		return nil, err
	}

	return &API{Query: queries, Mutation: mutations}, nil
}
