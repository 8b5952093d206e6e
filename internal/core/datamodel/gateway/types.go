package gateway

import (
	"errors"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusCompleted InvoiceStatus = "COMPLETED"
	InvoiceStatusFailed    InvoiceStatus = "FAILED"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

func (s InvoiceStatus) Known() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusCompleted, InvoiceStatusFailed, InvoiceStatusCancelled:
		return true
	}
	return false
}

type CreateInvoiceRequest struct {
	IdempotencyKey string            `json:"idempotency_key"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	CustomerName   string            `json:"customer_name"`
	CustomerEmail  string            `json:"customer_email"`
	SuccessURL     string            `json:"success_url"`
	CancelURL      string            `json:"cancel_url"`
	RedirectURL    string            `json:"redirect_url"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func (r *CreateInvoiceRequest) Validate() error {
	if r.IdempotencyKey == "" {
		return errors.New("idempotency_key is required")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be greater than 0")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	if r.SuccessURL == "" || r.CancelURL == "" || r.RedirectURL == "" {
		return errors.New("all callback urls are required")
	}
	return nil
}

type InvoiceData struct {
	ID          string        `json:"id"`
	Status      InvoiceStatus `json:"status"`
	RedirectURL string        `json:"redirect_url"`
}

type CreateInvoiceResponse struct {
	Data InvoiceData `json:"data"`
}

type InvoiceStatusData struct {
	ID       string        `json:"id"`
	Status   InvoiceStatus `json:"status"`
	Amount   int64         `json:"amount"`
	Currency string        `json:"currency"`
}

type InvoiceStatusResponse struct {
	Data InvoiceStatusData `json:"data"`
}
