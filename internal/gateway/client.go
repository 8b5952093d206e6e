// Package gateway implements the thin HTTP client for the external payment
// gateway: invoice creation and status queries. It owns the timeout and
// retry policy; everything above it speaks in terms of invoices and the
// error taxonomy, never raw HTTP.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/fitmarket/payment-orchestration/internal"
	gatewaytypes "github.com/fitmarket/payment-orchestration/internal/core/datamodel/gateway"
)

type Client struct {
	httpClient       *http.Client
	baseURL          string
	apiKey           string
	requestTimeout   time.Duration
	statusMaxRetries uint64
	logger           *slog.Logger
}

func NewClient(cfg *internal.GatewayConfig, logger *slog.Logger) *Client {
	maxRetries := cfg.StatusMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL:          cfg.BaseURL,
		apiKey:           cfg.APIKey,
		requestTimeout:   cfg.RequestTimeout,
		statusMaxRetries: uint64(maxRetries),
		logger:           logger,
	}
}

// CreateInvoice registers a new invoice with the gateway. Single attempt: a
// lost response does not mean the invoice was not created, so the caller's
// session ID travels as the idempotency key and the session row's claim
// pattern absorbs duplicates where the gateway cannot deduplicate itself.
func (c *Client) CreateInvoice(ctx context.Context, req *gatewaytypes.CreateInvoiceRequest) (*gatewaytypes.InvoiceData, error) {
	if err := req.Validate(); err != nil {
		c.logger.Error("invoice request validation failed", "error", err)
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, internal.NewInternalError("failed to marshal invoice request", err)
	}

	ctx, cancel := internal.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/invoices", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, internal.NewInternalError("failed to create HTTP request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	c.logger.Info("creating gateway invoice",
		"idempotency_key", req.IdempotencyKey,
		"amount", req.Amount,
		"currency", req.Currency)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("invoice creation request failed", "error", err, "idempotency_key", req.IdempotencyKey)
		return nil, internal.NewGatewayUnavailableError("gateway unreachable during invoice creation", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, internal.NewGatewayUnavailableError("failed to read gateway response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("gateway rejected invoice creation",
			"status", resp.StatusCode,
			"idempotency_key", req.IdempotencyKey)
		return nil, internal.NewGatewayUnavailableError(
			fmt.Sprintf("gateway returned status %d", resp.StatusCode), nil)
	}

	var invoiceResp gatewaytypes.CreateInvoiceResponse
	if err := json.Unmarshal(respBody, &invoiceResp); err != nil {
		c.logger.Error("failed to decode invoice response", "error", err)
		return nil, internal.NewGatewayProtocolError("malformed invoice creation response", err)
	}

	if invoiceResp.Data.ID == "" || invoiceResp.Data.RedirectURL == "" {
		c.logger.Error("invoice response missing required fields",
			"invoice_id", invoiceResp.Data.ID)
		return nil, internal.NewGatewayProtocolError("invoice response missing id or redirect url", nil)
	}

	c.logger.Info("gateway invoice created",
		"invoice_id", invoiceResp.Data.ID,
		"idempotency_key", req.IdempotencyKey)

	return &invoiceResp.Data, nil
}

// QueryStatus fetches the gateway-side truth for an invoice. Transient
// failures are retried with exponential backoff up to the configured bound;
// malformed responses are never retried and surface as protocol errors so
// callers never guess a status.
func (c *Client) QueryStatus(ctx context.Context, invoiceID string) (*gatewaytypes.InvoiceStatusData, error) {
	if invoiceID == "" {
		return nil, internal.NewValidationError("invoice id is required", internal.ErrCodeValidationFailed)
	}

	var status *gatewaytypes.InvoiceStatusData

	backoff := retry.WithMaxRetries(c.statusMaxRetries, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		data, err := c.queryStatusOnce(ctx, invoiceID)
		if err != nil {
			if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeGatewayDown {
				return retry.RetryableError(err)
			}
			return err
		}
		status = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) queryStatusOnce(ctx context.Context, invoiceID string) (*gatewaytypes.InvoiceStatusData, error) {
	ctx, cancel := internal.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/invoices/%s", c.baseURL, invoiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, internal.NewInternalError("failed to create HTTP request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("invoice status request failed", "error", err, "invoice_id", invoiceID)
		return nil, internal.NewGatewayUnavailableError("gateway unreachable during status query", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, internal.ErrInvoiceNotFound
	case resp.StatusCode >= 500:
		return nil, internal.NewGatewayUnavailableError(
			fmt.Sprintf("gateway returned status %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, internal.NewGatewayProtocolError(
			fmt.Sprintf("unexpected status %d from status query", resp.StatusCode), nil)
	}

	var statusResp gatewaytypes.InvoiceStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		c.logger.Error("failed to decode status response", "error", err, "invoice_id", invoiceID)
		return nil, internal.NewGatewayProtocolError("malformed invoice status response", err)
	}

	if !statusResp.Data.Status.Known() {
		c.logger.Error("gateway reported unknown invoice status",
			"invoice_id", invoiceID,
			"status", string(statusResp.Data.Status))
		return nil, internal.NewGatewayProtocolError(
			fmt.Sprintf("unknown invoice status %q", statusResp.Data.Status), nil)
	}

	return &statusResp.Data, nil
}
