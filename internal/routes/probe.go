package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultProbeTimeout bounds a single liveness probe.
const DefaultProbeTimeout = 5 * time.Second

// ErrAppUnavailable is matched by every liveness probe failure.
var ErrAppUnavailable = errors.New("local app is not running or available")

// Prober checks whether a local app is reachable at url.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// ProbeError describes a local app that failed its liveness probe.
type ProbeError struct {
	App string
	URL string
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s is not running or available via %s: %s", e.App, e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

func (e *ProbeError) Is(target error) bool {
	return target == ErrAppUnavailable
}

// StatusError is returned by HTTPProber when the app answers with anything other than 200.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// HTTPProber issues a HEAD request and requires an exact 200 response.
type HTTPProber struct {
	Client  *http.Client
	Timeout time.Duration
}

var _ Prober = (*HTTPProber)(nil)

// NewHTTPProber returns a prober that does not follow redirects. A timeout <= 0 uses
// DefaultProbeTimeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		Client: &http.Client{
			// A redirect is not a 200.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Timeout: timeout,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, url string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("creating probe request: %w", err)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, url string) error

func (f ProberFunc) Probe(ctx context.Context, url string) error {
	return f(ctx, url)
}
