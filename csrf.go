package hooq

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// csrf failure status codes. 419 is the Laravel-style "token expired"
// status; 403 is the generic forbidden used by cookie-based CSRF schemes.
const (
	statusCSRFForbidden = 403
	statusCSRFExpired   = 419
)

// csrfGuard recovers from CSRF-class failures: it refreshes the token via a
// side-channel GET and lets the transport replay the original request once.
//
// The singleflight group gives the required coordination: concurrent
// failures share one in-flight refresh, and the group forgets the key on
// completion so the next failure starts a fresh cycle. State is scoped to
// one client instance.
type csrfGuard struct {
	endpoint string
	group    singleflight.Group
}

// engages reports whether a failed request qualifies for recovery:
// a refresh endpoint is configured, the status is CSRF-class, the request
// is not the refresh call itself, and it has not already been replayed.
func (g *csrfGuard) engages(cfg *RequestConfig, reqErr *RequestError) bool {
	if g == nil || g.endpoint == "" {
		return false
	}
	if cfg.retried || cfg.URL == g.endpoint {
		return false
	}
	return reqErr.Status == statusCSRFForbidden || reqErr.Status == statusCSRFExpired
}

// refresh performs the token refresh, deduplicating concurrent callers.
// Every caller observes the shared flight's outcome. The refresh runs on a
// context detached from the triggering request, so one caller tearing down
// mid-flight cannot strand the others sharing the flight.
func (g *csrfGuard) refresh(ctx context.Context, t *transport) error {
	_, err, _ := g.group.Do("refresh", func() (any, error) {
		_, err := t.dispatch(context.WithoutCancel(ctx), &RequestConfig{
			Method: "GET",
			URL:    g.endpoint,
		})
		return nil, err
	})
	return err
}
