// Package testutil provides testing helpers for hooq clients: a scriptable
// HTTP test server that records requests, and polling helpers for
// asserting on asynchronous hook state.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

// Recorded is one request captured by the Server.
type Recorded struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Server is a scriptable httptest server with fluent route registration.
//
//	srv := testutil.NewServer().
//	    HandleJSON("GET", "/users/1", 200, map[string]any{"id": 1})
//	defer srv.Close()
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	fallback http.HandlerFunc
	recorded []Recorded
}

// NewServer creates and starts a Server. Unmatched requests get a 404.
func NewServer() *Server {
	s := &Server{
		routes: make(map[string]http.HandlerFunc),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// HandleJSON registers a route that responds with the JSON encoding of body.
func (s *Server) HandleJSON(method, path string, status int, body any) *Server {
	return s.HandleFunc(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			json.NewEncoder(w).Encode(body)
		}
	})
}

// HandleFunc registers a raw handler for method+path.
func (s *Server) HandleFunc(method, path string, fn http.HandlerFunc) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+path] = fn
	return s
}

// HandleAll sets a fallback handler for requests no route matches.
func (s *Server) HandleAll(fn http.HandlerFunc) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = fn
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))

	s.mu.Lock()
	s.recorded = append(s.recorded, Recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})
	fn, ok := s.routes[r.Method+" "+r.URL.Path]
	fallback := s.fallback
	s.mu.Unlock()

	if !ok {
		if fallback != nil {
			fallback(w, r)
			return
		}
		http.NotFound(w, r)
		return
	}
	fn(w, r)
}

// Requests returns a copy of all captured requests, in arrival order.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Recorded(nil), s.recorded...)
}

// Count returns the number of captured requests matching method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Eventually polls cond until it returns true or the timeout elapses.
// Fails the test on timeout.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// Never asserts that cond stays false for the full duration.
func Never(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			t.Fatal("condition unexpectedly became true")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
