// File: internal/infra/workflow/http_gateway.go
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"goalforge-async/internal/domain/ports/adapter"
	"goalforge-async/internal/infra/metrics"
)

var _ adapter.WorkflowEngine = (*HTTPGateway)(nil)

// HTTPGateway drives the external orchestration engine over its REST API.
// Executions are addressed by name; starting an execution whose name already
// exists is treated as success so the job id doubles as an idempotency key.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) (*HTTPGateway, error) {
	if baseURL == "" {
		return nil, errors.New("workflow base url empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid workflow base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (g *HTTPGateway) Name() string { return "http-workflow" }

func (g *HTTPGateway) StartExecution(ctx context.Context, name string, input json.RawMessage) error {
	payload := map[string]any{
		"name":  name,
		"input": input,
	}
	err := g.post(ctx, "/executions", payload, http.StatusConflict)
	metrics.IncWorkflowCall("start", err == nil)
	return err
}

func (g *HTTPGateway) StopExecution(ctx context.Context, name, cause string) error {
	payload := map[string]any{
		"cause": cause,
	}
	path := fmt.Sprintf("/executions/%s/stop", url.PathEscape(name))
	// 404/410 mean the execution is already gone, which is what a stop wants.
	err := g.post(ctx, path, payload, http.StatusNotFound, http.StatusGone)
	metrics.IncWorkflowCall("stop", err == nil)
	return err
}

// post sends a JSON body and treats 2xx plus any listed benign status as success.
func (g *HTTPGateway) post(ctx context.Context, path string, payload any, benign ...int) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("workflow engine call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	for _, code := range benign {
		if resp.StatusCode == code {
			return nil
		}
	}
	var out struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Message != "" {
		return fmt.Errorf("workflow engine %s: %d %s", path, resp.StatusCode, out.Message)
	}
	return fmt.Errorf("workflow engine %s: status %d", path, resp.StatusCode)
}
