package hooq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BeforeRequestHook runs before a request is dispatched and may mutate the
// config in place. Returning an error aborts the request.
//
// Hooks execute strictly in the order client-global, then definition-level,
// then call-site; each sees the mutations of the previous.
type BeforeRequestHook func(ctx context.Context, cfg *RequestConfig) error

// LifecycleHook observes the start or finish of a dispatch.
// Finish hooks run regardless of outcome.
type LifecycleHook func(ctx context.Context, cfg *RequestConfig)

// RequestConfig is the mutable per-invocation request description passed
// through the before-request hook chain.
type RequestConfig struct {
	Method string

	// URL is the path relative to the client base URL, after template
	// resolution.
	URL string

	// Params is the query string.
	Params url.Values

	// Body is the JSON-marshalable request body, nil for no body.
	// Multipart bodies are carried in Form instead.
	Body any

	// Form holds the flattened multipart fields when the definition is
	// multipart; Body is ignored in that case.
	Form []FormField

	Headers http.Header

	// OnUploadProgress receives 0-100 as the request body is written.
	OnUploadProgress func(percent int)

	// hooks are definition- and call-site-level before-request hooks,
	// executed after the client-global chain.
	hooks []BeforeRequestHook

	// retried marks a request already replayed after a CSRF refresh, so it
	// is never replayed twice.
	retried bool

	// rawBody caches the serialized body from the first dispatch. A CSRF
	// replay must send the same bytes; multipart file readers cannot be
	// consumed a second time.
	rawBody     []byte
	rawType     string
	bodyEncoded bool

	started time.Time
}

// SetHeader sets a request header, initializing the header map if needed.
func (c *RequestConfig) SetHeader(key, value string) {
	if c.Headers == nil {
		c.Headers = make(http.Header)
	}
	c.Headers.Set(key, value)
}

// Elapsed returns the time since dispatch started. Zero before dispatch.
func (c *RequestConfig) Elapsed() time.Duration {
	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// Response is a completed HTTP exchange.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// transport dispatches request configs over an *http.Client. It owns the
// global hook chain, lifecycle hooks, XSRF header injection, and CSRF
// recovery.
type transport struct {
	baseURL    string
	client     *http.Client
	headers    http.Header
	xsrf       bool
	xsrfCookie string
	xsrfHeader string
	before     []BeforeRequestHook
	onStart    LifecycleHook
	onFinish   LifecycleHook
	csrf       *csrfGuard
	logger     *slog.Logger
}

func (t *transport) log() *slog.Logger {
	if t.logger == nil {
		return slog.Default()
	}
	return t.logger
}

// Do runs the full hook chain and dispatches cfg, applying CSRF recovery
// when it is configured and the failure qualifies.
func (t *transport) Do(ctx context.Context, cfg *RequestConfig) (*Response, error) {
	// Global hooks first, then definition- and call-site-level.
	for _, hook := range t.before {
		if err := hook(ctx, cfg); err != nil {
			return nil, err
		}
	}
	for _, hook := range cfg.hooks {
		if err := hook(ctx, cfg); err != nil {
			return nil, err
		}
	}

	cfg.started = time.Now()
	if t.onStart != nil {
		t.onStart(ctx, cfg)
	}
	defer func() {
		if t.onFinish != nil {
			t.onFinish(ctx, cfg)
		}
	}()

	resp, err := t.dispatch(ctx, cfg)

	var reqErr *RequestError
	if err != nil && errors.As(err, &reqErr) && t.csrf.engages(cfg, reqErr) {
		t.log().Debug("csrf failure, refreshing token",
			slog.String("url", cfg.URL),
			slog.Int("status", reqErr.Status))
		if rerr := t.csrf.refresh(ctx, t); rerr != nil {
			// The refresh error wins over the original failure.
			return nil, rerr
		}
		cfg.retried = true
		resp, err = t.dispatch(ctx, cfg)
	}
	return resp, err
}

// dispatch performs one HTTP exchange for cfg.
func (t *transport) dispatch(ctx context.Context, cfg *RequestConfig) (*Response, error) {
	u := strings.TrimSuffix(t.baseURL, "/") + cfg.URL
	if len(cfg.Params) > 0 {
		u += "?" + cfg.Params.Encode()
	}

	if !cfg.bodyEncoded {
		body, contentType, err := t.encodeBody(cfg)
		if err != nil {
			return nil, err
		}
		cfg.rawBody, cfg.rawType, cfg.bodyEncoded = body, contentType, true
	}
	body, contentType := cfg.rawBody, cfg.rawType

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
		if cfg.OnUploadProgress != nil {
			reader = &progressReader{
				r:     reader,
				total: int64(len(body)),
				fn:    cfg.OnUploadProgress,
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, u, reader)
	if err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	}

	// Client defaults first, per-request headers win.
	for k, vs := range t.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	for k, vs := range cfg.Headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	t.setXSRFHeader(req)

	res, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, &RequestError{Code: codeCanceled, Message: "request canceled"}
		}
		return nil, &RequestError{Message: err.Error()}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, &RequestError{Code: codeCanceled, Message: "request canceled"}
		}
		return nil, &RequestError{Status: res.StatusCode, Message: err.Error()}
	}

	if res.StatusCode >= 400 {
		return nil, &RequestError{
			Status:  res.StatusCode,
			Message: statusMessage(res.StatusCode, data),
			Body:    data,
		}
	}

	return &Response{
		Status: res.StatusCode,
		Header: res.Header,
		Body:   data,
	}, nil
}

// encodeBody serializes the request body, returning the raw bytes and the
// content type, or nil for body-less requests.
func (t *transport) encodeBody(cfg *RequestConfig) ([]byte, string, error) {
	if cfg.Form != nil {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := writeForm(w, cfg.Form); err != nil {
			return nil, "", &RequestError{Message: "encode multipart body: " + err.Error()}
		}
		if err := w.Close(); err != nil {
			return nil, "", &RequestError{Message: "encode multipart body: " + err.Error()}
		}
		return buf.Bytes(), w.FormDataContentType(), nil
	}
	if cfg.Body == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(cfg.Body)
	if err != nil {
		return nil, "", &RequestError{Message: "encode request body: " + err.Error()}
	}
	return data, "application/json", nil
}

// setXSRFHeader copies the XSRF cookie value into the matching request
// header, the cookie-based CSRF convention the refresh endpoint maintains.
func (t *transport) setXSRFHeader(req *http.Request) {
	if !t.xsrf || t.client.Jar == nil {
		return
	}
	base, err := url.Parse(t.baseURL)
	if err != nil {
		return
	}
	for _, c := range t.client.Jar.Cookies(base) {
		if c.Name == t.xsrfCookie {
			req.Header.Set(t.xsrfHeader, c.Value)
			return
		}
	}
}

// statusMessage prefers a server-provided "message" (or "error") field over
// the generic status text.
func statusMessage(status int, body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	return http.StatusText(status)
}

// progressReader reports cumulative read percentage as the transport
// consumes the request body.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	fn    func(percent int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.read += int64(n)
		percent := int(p.read * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		p.fn(percent)
	}
	return n, err
}
