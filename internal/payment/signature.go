package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/fitmarket/payment-orchestration/internal"
)

// SignatureVerifier authenticates a raw webhook body against its signature
// header. The gateway's exact signing scheme is configuration-driven; the
// engine never assumes one.
type SignatureVerifier interface {
	Verify(body []byte, signatureHeader string) error
}

// NewSignatureVerifier selects the verifier for the configured scheme. A
// missing secret yields a verifier that rejects everything: webhooks are
// refused rather than accepted unsigned.
func NewSignatureVerifier(cfg *internal.GatewayConfig) (SignatureVerifier, error) {
	if cfg.WebhookSecret == "" {
		return rejectAllVerifier{}, nil
	}
	switch strings.ToLower(cfg.SignatureScheme) {
	case "", "hmac-sha256":
		return &hmacSHA256Verifier{secret: []byte(cfg.WebhookSecret)}, nil
	}
	return nil, internal.NewConfigurationError(
		"unsupported webhook signature scheme: "+cfg.SignatureScheme, internal.ErrCodeValidationFailed)
}

type hmacSHA256Verifier struct {
	secret []byte
}

func (v *hmacSHA256Verifier) Verify(body []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return internal.NewSignatureMismatchError("missing webhook signature")
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(signatureHeader, "sha256="))
	if err != nil {
		return internal.NewSignatureMismatchError("webhook signature is not valid hex")
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return internal.NewSignatureMismatchError("webhook signature mismatch")
	}
	return nil
}

type rejectAllVerifier struct{}

func (rejectAllVerifier) Verify([]byte, string) error {
	return internal.NewSignatureMismatchError("webhook verification not configured")
}
