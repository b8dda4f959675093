package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/errors"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/models"
)

// Backend paths for the remote operations.
var BackendPaths = map[models.ActionType]string{
	models.ActionSubmitActivity: "/activities/submit",
	models.ActionGradeActivity:  "/activities/grade",
	models.ActionPostNotice:     "/notices",
}

// HTTPConfig configures the backend executors.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	// Header values added to every request, e.g. a static API token.
	Headers map[string]string
}

// HTTPExecutor POSTs the payload as JSON to a backend endpoint.
type HTTPExecutor struct {
	client  *http.Client
	url     string
	headers map[string]string
}

var _ Executor = (*HTTPExecutor)(nil)

// NewHTTPExecutor creates an executor posting to baseURL+path.
func NewHTTPExecutor(client *http.Client, baseURL, path string, headers map[string]string) *HTTPExecutor {
	return &HTTPExecutor{
		client:  client,
		url:     strings.TrimRight(baseURL, "/") + path,
		headers: headers,
	}
}

// Execute sends the payload. Any transport error or non-2xx status is a failure.
func (e *HTTPExecutor) Execute(ctx context.Context, payload json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", e.url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrBackendOffline, "POST "+e.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			return errors.Newf(errors.ErrExecutorFailed, "POST %s: %s", e.url, resp.Status)
		}
		return errors.Newf(errors.ErrExecutorFailed, "POST %s: %s: %s", e.url, resp.Status, msg)
	}

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// NewBackendRegistry registers an HTTP executor for every known action type.
func NewBackendRegistry(cfg HTTPConfig) *Registry {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	r := NewRegistry()
	for _, actionType := range models.ActionTypes {
		r.Register(actionType, NewHTTPExecutor(client, cfg.BaseURL, BackendPaths[actionType], cfg.Headers))
	}
	return r
}
