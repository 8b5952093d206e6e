package payment

import (
	"encoding/json"

	errors "github.com/fitmarket/payment-orchestration/internal"
	"github.com/fitmarket/payment-orchestration/internal/clientcontext"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/intent"
	"github.com/fitmarket/payment-orchestration/internal/redirect"
)

// requiredPayloadFields lists the minimum identifiers each business type must
// carry. A missing identifier is a validation error, never silently
// defaulted.
var requiredPayloadFields = map[intent.BusinessType][]string{
	intent.BusinessTrainerBooking: {"trainer_id"},
	intent.BusinessGymMembership:  {"gym_id", "plan_id"},
	intent.BusinessServiceOrder:   {"service_id"},
}

// BuildIntent validates the business request and maps it into an immutable
// gateway-agnostic PaymentIntent. The callback URLs come from the redirect
// policy's URL-construction half for the resolved client context; the
// business payload is serialized opaquely so nothing below this layer needs
// to understand its shape.
func BuildIntent(req *CreateSessionRequest, ctx clientcontext.ClientContext) (*intent.PaymentIntent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	businessType := intent.BusinessType(req.BusinessType)
	if !businessType.Valid() {
		return nil, errors.NewValidationFieldError("business_type",
			"business_type must be one of trainer_booking, gym_membership, service_order",
			errors.ErrCodeInvalidBusinessType)
	}

	for _, field := range requiredPayloadFields[businessType] {
		if req.Payload[field] == "" {
			return nil, errors.NewValidationFieldError("payload."+field,
				field+" is required for "+req.BusinessType,
				errors.ErrCodeMissingPayloadField)
		}
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, errors.NewInternalError("failed to serialize business payload", err)
	}

	return &intent.PaymentIntent{
		Amount:          req.Amount,
		Currency:        req.Currency,
		BusinessType:    businessType,
		BusinessPayload: payload,
		CallbackURLs:    redirect.CallbackURLs(ctx, businessType),
		Customer:        req.Customer,
	}, nil
}
