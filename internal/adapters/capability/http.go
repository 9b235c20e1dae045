package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/logging"
	"github.com/hugo-lorenzo-mato/teamflow/internal/nodeconfig"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// HTTPCapability invokes agents on a remote backend:
//
//	POST {base}/v1/agents/{agent_type}/invoke
type HTTPCapability struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *logging.Logger
}

var _ core.Capability = (*HTTPCapability)(nil)

// HTTPOption configures an HTTPCapability.
type HTTPOption func(*HTTPCapability)

// WithToken sends token as a bearer credential.
func WithToken(token string) HTTPOption {
	return func(c *HTTPCapability) {
		c.token = token
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPCapability) {
		if client != nil {
			c.client = client
		}
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *logging.Logger) HTTPOption {
	return func(c *HTTPCapability) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewHTTPCapability creates a client for the backend at baseURL.
func NewHTTPCapability(baseURL string, timeout time.Duration, opts ...HTTPOption) (*HTTPCapability, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, core.ErrValidation("INVALID_BASE_URL", fmt.Sprintf("invalid capability base url %q", baseURL))
	}
	c := &HTTPCapability{
		baseURL: u.String(),
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type invokePayload struct {
	RunID         core.RunID               `json:"run_id"`
	NodeID        core.NodeID              `json:"node_id"`
	Label         string                   `json:"label"`
	Configuration map[string]interface{}   `json:"configuration"`
	Predecessors  []core.PredecessorOutput `json:"predecessors"`
}

type invokeResponse struct {
	Output string `json:"output"`
	Model  string `json:"model"`
}

// Invoke implements core.Capability.
func (c *HTTPCapability) Invoke(ctx context.Context, req core.InvokeRequest) (*core.InvokeResult, error) {
	start := time.Now()

	preds := req.PredecessorOutputs
	if preds == nil {
		preds = []core.PredecessorOutput{}
	}
	payload, err := json.Marshal(invokePayload{
		RunID:         req.RunID,
		NodeID:        req.NodeID,
		Label:         req.Label,
		Configuration: nodeconfig.ToMap(req.Configuration),
		Predecessors:  preds,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/agents/%s/invoke", c.baseURL, url.PathEscape(string(req.AgentType)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("invoking remote agent", "agent", req.AgentType, "node_id", req.NodeID)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.ErrExecution(core.CodeCapabilityFailed, fmt.Sprintf("request failed: %v", err)).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		domErr := core.ErrExecution(core.CodeCapabilityFailed, fmt.Sprintf("invalid response: %v", err))
		domErr.Retryable = false
		return nil, domErr.WithCause(err)
	}

	return &core.InvokeResult{
		Output:   out.Output,
		Model:    out.Model,
		Duration: time.Since(start),
	}, nil
}

// statusError maps a non-2xx response to a DomainError. Throttling and server
// errors are retryable.
func statusError(status int, body string) *core.DomainError {
	msg := fmt.Sprintf("agent backend returned %d", status)
	if body != "" {
		msg += ": " + body
	}
	err := core.ErrExecution(core.CodeCapabilityFailed, msg).WithDetail("status", status)
	err.Retryable = status == http.StatusTooManyRequests || status >= 500
	return err
}
