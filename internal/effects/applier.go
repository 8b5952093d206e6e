// Package effects calls the marketplace core API to apply the downstream
// business action for a completed payment. The reconciliation engine's
// applied_side_effect_at guard ensures each session triggers at most one
// call; the core API is additionally keyed by business identifiers so
// repeated calls for the same logical purchase stay safe.
package effects

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fitmarket/payment-orchestration/internal"
)

type CoreClient struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	requestTimeout time.Duration
	logger         *slog.Logger
}

func NewCoreClient(cfg *internal.EffectsConfig, logger *slog.Logger) *CoreClient {
	return &CoreClient{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		requestTimeout: cfg.RequestTimeout,
		logger:         logger,
	}
}

func (c *CoreClient) ConfirmBooking(ctx context.Context, payload json.RawMessage) error {
	return c.post(ctx, "/internal/v1/bookings/confirm", payload)
}

func (c *CoreClient) ActivateMembership(ctx context.Context, payload json.RawMessage) error {
	return c.post(ctx, "/internal/v1/memberships/activate", payload)
}

func (c *CoreClient) OpenServiceOrder(ctx context.Context, payload json.RawMessage) error {
	return c.post(ctx, "/internal/v1/service-orders/open", payload)
}

func (c *CoreClient) post(ctx context.Context, path string, payload json.RawMessage) error {
	ctx, cancel := internal.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create effect request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Info("applying business effect", "path", path)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("effect request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("core api rejected business effect",
			"path", path,
			"status", resp.StatusCode,
			"response", string(body))
		return fmt.Errorf("core api returned status %d", resp.StatusCode)
	}

	return nil
}
