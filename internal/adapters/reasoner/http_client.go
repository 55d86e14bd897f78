package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

type HTTPClient struct {
	baseURL string
	client  *retryablehttp.Client
	logger  *slog.Logger
}

type concludeRequest struct {
	Rules string `json:"rules"`
	Query string `json:"query"`
}

type concludeResponse struct {
	Conclusion  string `json:"conclusion"`
	InferenceMs int64  `json:"inference_ms"`
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	// Retry only when the request never produced a response. A non-2xx
	// answer means the service made a decision and must not be replayed.
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return resp == nil && err != nil, nil
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

func (c *HTTPClient) Conclude(ctx context.Context, req ports.ReasonRequest) (ports.ReasonResult, error) {
	body, err := json.Marshal(concludeRequest{
		Rules: string(req.Rules),
		Query: req.Query,
	})
	if err != nil {
		return ports.ReasonResult{}, fmt.Errorf("encode reasoner request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/conclude", bytes.NewReader(body))
	if err != nil {
		return ports.ReasonResult{}, fmt.Errorf("build reasoner request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	}

	started := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.ErrorContext(ctx, "reasoner call failed",
			"module", "reasoner.http",
			"layer", "adapter",
			"operation", "conclude",
			"outcome", "failure",
			"error", err.Error(),
		)
		return ports.ReasonResult{}, fmt.Errorf("reasoner transport: %w", domain.ErrReasonerUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.logger.ErrorContext(ctx, "reasoner returned error status",
			"module", "reasoner.http",
			"layer", "adapter",
			"operation", "conclude",
			"outcome", "failure",
			"status", resp.StatusCode,
		)
		return ports.ReasonResult{}, fmt.Errorf("reasoner status %d: %w", resp.StatusCode, domain.ErrReasonerUnavailable)
	}

	var out concludeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ports.ReasonResult{}, fmt.Errorf("decode reasoner response: %w", domain.ErrReasonerUnavailable)
	}
	if out.InferenceMs == 0 {
		out.InferenceMs = time.Since(started).Milliseconds()
	}
	return ports.ReasonResult{
		Conclusion:  out.Conclusion,
		InferenceMs: out.InferenceMs,
	}, nil
}
