package oauth

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// userAgentTransport sets the configured User-Agent on every request and
// asks for JSON unless the caller chose otherwise.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", "application/json")
	}
	return t.base.RoundTrip(r)
}

// newHTTPClient builds the client used for every provider request. When base
// is nil a traced default client is created; otherwise base's transport is
// wrapped so the User-Agent is still enforced.
func newHTTPClient(cfg Config, base *http.Client) *http.Client {
	if base == nil {
		return &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: otelhttp.NewTransport(&userAgentTransport{
				base:      http.DefaultTransport,
				userAgent: cfg.UserAgent,
			}),
		}
	}

	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	c := *base
	c.Transport = &userAgentTransport{base: rt, userAgent: cfg.UserAgent}
	if c.Timeout <= 0 {
		c.Timeout = cfg.HTTPTimeout
	}
	return &c
}
