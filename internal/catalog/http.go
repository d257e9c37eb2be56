package catalog

import (
	"net/http"
	"time"
)

// userAgentTransport sets a fixed User-Agent on every request.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.agent != "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	if t.base != nil {
		return t.base.RoundTrip(req)
	}
	return http.DefaultTransport.RoundTrip(req)
}

func newHTTPClient(timeout time.Duration, agent string) *http.Client {
	return &http.Client{
		Transport: userAgentTransport{agent: agent, base: http.DefaultTransport},
		Timeout:   timeout,
	}
}
