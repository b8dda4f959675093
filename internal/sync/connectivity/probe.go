package connectivity

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/logging"
)

// HTTPProbe considers the backend online when GET on URL answers 2xx.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

// NewHTTPProbe creates a probe with its own client and timeout.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProbe{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Check performs one health request.
func (p *HTTPProbe) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		logging.Warn("Invalid health probe request", map[string]interface{}{"url": p.URL, "error": err.Error()})
		return false
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		logging.Debug("Health probe failed", map[string]interface{}{"url": p.URL, "error": err.Error()})
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
