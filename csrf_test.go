package hooq

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/broady/hooq/testutil"
)

func TestCSRFGuard_Engages(t *testing.T) {
	g := &csrfGuard{endpoint: "/csrf-cookie"}
	tests := []struct {
		name string
		g    *csrfGuard
		cfg  *RequestConfig
		err  *RequestError
		want bool
	}{
		{"403 engages", g, &RequestConfig{URL: "/users"}, &RequestError{Status: 403}, true},
		{"419 engages", g, &RequestConfig{URL: "/users"}, &RequestError{Status: 419}, true},
		{"other status", g, &RequestConfig{URL: "/users"}, &RequestError{Status: 500}, false},
		{"already retried", g, &RequestConfig{URL: "/users", retried: true}, &RequestError{Status: 403}, false},
		{"refresh endpoint itself", g, &RequestConfig{URL: "/csrf-cookie"}, &RequestError{Status: 403}, false},
		{"nil guard", nil, &RequestConfig{URL: "/users"}, &RequestError{Status: 403}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.g.engages(tt.cfg, tt.err); got != tt.want {
				t.Errorf("engages() = %v, want %v", got, tt.want)
			}
		})
	}
}

// csrfServer fails each protected request once with the given status, then
// succeeds after a token refresh has happened.
func csrfServer(t *testing.T, failStatus int, refreshDelay time.Duration) (*testutil.Server, *atomic.Int64) {
	t.Helper()
	var refreshes atomic.Int64
	var mu sync.Mutex
	refreshed := false

	srv := testutil.NewServer()
	srv.HandleFunc("GET", "/csrf-cookie", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(refreshDelay)
		refreshes.Add(1)
		mu.Lock()
		refreshed = true
		mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "fresh", Path: "/"})
		w.WriteHeader(204)
	})
	srv.HandleAll(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ok := refreshed
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(failStatus)
			w.Write([]byte(`{"message":"CSRF token mismatch"}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})
	return srv, &refreshes
}

func TestCSRF_RefreshAndReplay(t *testing.T) {
	srv, refreshes := csrfServer(t, 419, 0)
	defer srv.Close()

	api, err := NewClient(srv.URL).
		WithXSRFToken().
		WithCSRFRefreshEndpoint("/csrf-cookie").
		WithMutations(MutationTree{"create": &Mutation{Path: "/items"}}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	create, _ := api.MutationAt("create")
	h := create(nil)
	defer h.Close()
	h.Mutate(MutateArgs{Data: map[string]any{"n": 1}})
	waitDone(t, h.Done)

	if msg := h.ErrMessage.Get(); msg != "" {
		t.Fatalf("recovered request should succeed, got %q", msg)
	}
	if refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes.Load())
	}
	// Original attempt, refresh, replay.
	if n := srv.Count("POST", "/items"); n != 2 {
		t.Errorf("POST /items count = %d, want 2 (original + replay)", n)
	}

	reqs := srv.Requests()
	last := reqs[len(reqs)-1]
	if got := last.Header.Get("X-XSRF-TOKEN"); got != "fresh" {
		t.Errorf("replay should carry the refreshed token, got %q", got)
	}
}

func TestCSRF_ConcurrentFailuresShareOneRefresh(t *testing.T) {
	srv, refreshes := csrfServer(t, 403, 100*time.Millisecond)
	defer srv.Close()

	api, err := NewClient(srv.URL).
		WithCSRFRefreshEndpoint("/csrf-cookie").
		WithMutations(MutationTree{
			"a": &Mutation{Path: "/a"},
			"b": &Mutation{Path: "/b"},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	af, _ := api.MutationAt("a")
	bf, _ := api.MutationAt("b")
	ha := af(nil)
	hb := bf(nil)
	defer ha.Close()
	defer hb.Close()

	ha.Mutate(MutateArgs{})
	hb.Mutate(MutateArgs{})
	waitDone(t, ha.Done)
	waitDone(t, hb.Done)

	if ha.ErrMessage.Get() != "" || hb.ErrMessage.Get() != "" {
		t.Fatalf("both requests should recover: a=%q b=%q",
			ha.ErrMessage.Get(), hb.ErrMessage.Get())
	}
	if refreshes.Load() != 1 {
		t.Errorf("concurrent failures must share one refresh, got %d", refreshes.Load())
	}
	if n := srv.Count("POST", "/a"); n != 2 {
		t.Errorf("POST /a count = %d, want 2", n)
	}
	if n := srv.Count("POST", "/b"); n != 2 {
		t.Errorf("POST /b count = %d, want 2", n)
	}
}

func TestCSRF_ReplayReusesEncodedMultipartBody(t *testing.T) {
	srv, _ := csrfServer(t, 403, 0)
	defer srv.Close()

	api, err := NewClient(srv.URL).
		WithCSRFRefreshEndpoint("/csrf-cookie").
		WithMutations(MutationTree{
			"upload": &Mutation{Path: "/upload", Multipart: true},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	upload, _ := api.MutationAt("upload")
	h := upload(nil)
	defer h.Close()
	h.Mutate(MutateArgs{Data: map[string]any{
		"doc": &File{Name: "d.txt", Content: strings.NewReader("file-payload")},
	}})
	waitDone(t, h.Done)

	if msg := h.ErrMessage.Get(); msg != "" {
		t.Fatalf("recovered upload should succeed, got %q", msg)
	}

	var bodies [][]byte
	for _, r := range srv.Requests() {
		if r.Method == "POST" && r.Path == "/upload" {
			bodies = append(bodies, r.Body)
		}
	}
	if len(bodies) != 2 {
		t.Fatalf("expected original + replay, got %d uploads", len(bodies))
	}
	// The file reader is consumed by the first encode; the replay must
	// carry the same bytes, not a drained part.
	if !bytes.Contains(bodies[0], []byte("file-payload")) {
		t.Fatal("original upload missing file content")
	}
	if !bytes.Contains(bodies[1], []byte("file-payload")) {
		t.Error("replayed upload lost the file content")
	}
	if !bytes.Equal(bodies[0], bodies[1]) {
		t.Error("replay must send the identical encoded body")
	}
}

func TestCSRF_RefreshSurvivesCallerTeardown(t *testing.T) {
	srv, refreshes := csrfServer(t, 403, 150*time.Millisecond)
	defer srv.Close()

	api, err := NewClient(srv.URL).
		WithCSRFRefreshEndpoint("/csrf-cookie").
		WithMutations(MutationTree{
			"a": &Mutation{Path: "/a"},
			"b": &Mutation{Path: "/b"},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	af, _ := api.MutationAt("a")
	bf, _ := api.MutationAt("b")
	ha := af(nil)
	hb := bf(nil)
	defer hb.Close()

	ha.Mutate(MutateArgs{})
	hb.Mutate(MutateArgs{})

	// Tear down hook A while the shared refresh is in flight; hook B must
	// still see the refresh complete and recover.
	testutil.Eventually(t, 2*time.Second, func() bool {
		return srv.Count("GET", "/csrf-cookie") >= 1
	})
	ha.Close()

	waitDone(t, hb.Done)
	if msg := hb.ErrMessage.Get(); msg != "" {
		t.Fatalf("hook B should recover despite A's teardown, got %q", msg)
	}
	if refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes.Load())
	}
	if n := srv.Count("POST", "/b"); n != 2 {
		t.Errorf("POST /b count = %d, want original + replay", n)
	}
}

func TestCSRF_NoSecondReplay(t *testing.T) {
	// The server keeps failing with 403 even after refresh.
	srv := testutil.NewServer()
	srv.HandleFunc("GET", "/csrf-cookie", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	})
	srv.HandleAll(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(403)
		w.Write([]byte(`{"message":"still forbidden"}`))
	})
	defer srv.Close()

	api, err := NewClient(srv.URL).
		WithCSRFRefreshEndpoint("/csrf-cookie").
		WithMutations(MutationTree{"create": &Mutation{Path: "/items"}}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	create, _ := api.MutationAt("create")
	h := create(nil)
	defer h.Close()
	h.Mutate(MutateArgs{})
	waitDone(t, h.Done)

	if msg := h.ErrMessage.Get(); msg != "still forbidden" {
		t.Errorf("error = %q, want the persistent failure", msg)
	}
	if n := srv.Count("POST", "/items"); n != 2 {
		t.Errorf("POST /items count = %d, want exactly original + one replay", n)
	}
	if n := srv.Count("GET", "/csrf-cookie"); n != 1 {
		t.Errorf("refresh count = %d, want 1", n)
	}
}

func TestCSRF_RefreshFailureWins(t *testing.T) {
	srv := testutil.NewServer()
	srv.HandleFunc("GET", "/csrf-cookie", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(500)
		w.Write([]byte(`{"message":"refresh broken"}`))
	})
	srv.HandleAll(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(419)
		w.Write([]byte(`{"message":"token expired"}`))
	})
	defer srv.Close()

	api, err := NewClient(srv.URL).
		WithCSRFRefreshEndpoint("/csrf-cookie").
		WithMutations(MutationTree{"create": &Mutation{Path: "/items"}}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	create, _ := api.MutationAt("create")
	h := create(nil)
	defer h.Close()
	h.Mutate(MutateArgs{})
	waitDone(t, h.Done)

	if msg := h.ErrMessage.Get(); msg != "refresh broken" {
		t.Errorf("error = %q, the refresh failure should win", msg)
	}
	if n := srv.Count("POST", "/items"); n != 1 {
		t.Errorf("failed refresh must suppress the replay, POST count = %d", n)
	}
}
