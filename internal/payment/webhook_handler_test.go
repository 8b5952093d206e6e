package payment_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fitmarket/payment-orchestration/internal"
	gatewaytypes "github.com/fitmarket/payment-orchestration/internal/core/datamodel/gateway"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/intent"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/session"
	"github.com/fitmarket/payment-orchestration/internal/core/events"
	paymentPkg "github.com/fitmarket/payment-orchestration/internal/payment"
	"github.com/fitmarket/payment-orchestration/internal/transport"
)

var _ = Describe("WebhookHandler", func() {
	const webhookSecret = "whsec-handler-test"

	var (
		repo    *mockSessionRepository
		gw      *mockGatewayClient
		applier *mockEffectApplier
		handler *paymentPkg.WebhookHandler
	)

	BeforeEach(func() {
		repo = newMockSessionRepository()
		gw = &mockGatewayClient{}
		applier = &mockEffectApplier{}
		logger := testLogger()
		engine := paymentPkg.NewEngine(repo, gw, applier, events.NewEventBus(logger), logger)

		verifier, err := paymentPkg.NewSignatureVerifier(&internal.GatewayConfig{
			WebhookSecret:   webhookSecret,
			SignatureScheme: "hmac-sha256",
		})
		Expect(err).ToNot(HaveOccurred())

		handler = paymentPkg.NewWebhookHandler(transport.NewBaseHandler(logger), engine, verifier, logger)
	})

	post := func(body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/callback", bytes.NewReader(body))
		if signature != "" {
			req.Header.Set(paymentPkg.SignatureHeader, signature)
		}
		rec := httptest.NewRecorder()
		handler.HandleGatewayCallback(rec, req)
		return rec
	}

	signedPost := func(body []byte) *httptest.ResponseRecorder {
		return post(body, signBody(webhookSecret, body))
	}

	webhookBody := func(invoiceID, status string) []byte {
		body, err := json.Marshal(paymentPkg.WebhookPayload{
			InvoiceID: invoiceID,
			Status:    status,
			Amount:    250000,
			Currency:  "IDR",
		})
		Expect(err).ToNot(HaveOccurred())
		return body
	}

	Context("with a correctly signed completion notification", func() {
		BeforeEach(func() {
			repo.put(pendingSession(intent.BusinessTrainerBooking, map[string]string{"trainer_id": "tr-42"}, "inv-001"))
			gw.statusResp = &gatewaytypes.InvoiceStatusData{
				ID:     "inv-001",
				Status: gatewaytypes.InvoiceStatusCompleted,
				Amount: 250000,
			}
		})

		It("settles the session and acknowledges with 200", func() {
			rec := signedPost(webhookBody("inv-001", "COMPLETED"))

			Expect(rec.Code).To(Equal(http.StatusOK))
			stored, _ := repo.GetByID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
			Expect(stored.Status).To(Equal(session.StatusCompleted))
			Expect(applier.bookingCalls).To(Equal(1))
		})

		It("acknowledges a duplicate delivery without reapplying the effect", func() {
			body := webhookBody("inv-001", "COMPLETED")

			Expect(signedPost(body).Code).To(Equal(http.StatusOK))
			Expect(signedPost(body).Code).To(Equal(http.StatusOK))

			Expect(applier.totalCalls()).To(Equal(1))
		})

		It("corroborates with the gateway instead of trusting the pushed status", func() {
			// The body claims COMPLETED but the gateway still says pending.
			gw.statusResp = &gatewaytypes.InvoiceStatusData{ID: "inv-001", Status: gatewaytypes.InvoiceStatusPending}

			rec := signedPost(webhookBody("inv-001", "COMPLETED"))

			Expect(rec.Code).To(Equal(http.StatusOK))
			stored, _ := repo.GetByID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
			Expect(stored.Status).To(Equal(session.StatusGatewayPending))
			Expect(applier.totalCalls()).To(BeZero())
		})
	})

	Context("with an invalid signature", func() {
		It("rejects with 401 and never touches session state", func() {
			repo.put(pendingSession(intent.BusinessTrainerBooking, map[string]string{"trainer_id": "tr-42"}, "inv-001"))
			body := webhookBody("inv-001", "COMPLETED")

			rec := post(body, signBody("attacker-secret", body))

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			stored, _ := repo.GetByID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
			Expect(stored.Status).To(Equal(session.StatusGatewayPending))
			Expect(stored.ReconciliationAttempts).To(BeZero())
			Expect(gw.statusCalls).To(BeZero())
		})

		It("rejects an unsigned body with 401", func() {
			rec := post(webhookBody("inv-001", "COMPLETED"), "")

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("with a malformed body", func() {
		It("rejects unparseable JSON with 400", func() {
			body := []byte("{not json")

			rec := post(body, signBody(webhookSecret, body))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a payload missing the invoice id with 400", func() {
			body := []byte(`{"status":"COMPLETED"}`)

			rec := post(body, signBody(webhookSecret, body))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects an oversized body with 400 and never touches session state", func() {
			repo.put(pendingSession(intent.BusinessTrainerBooking, map[string]string{"trainer_id": "tr-42"}, "inv-001"))
			body := bytes.Repeat([]byte("a"), 2<<20)

			rec := post(body, signBody(webhookSecret, body))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			stored, _ := repo.GetByID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
			Expect(stored.Status).To(Equal(session.StatusGatewayPending))
			Expect(stored.ReconciliationAttempts).To(BeZero())
			Expect(gw.statusCalls).To(BeZero())
		})
	})

	Context("with a notification for an unknown invoice", func() {
		It("responds 404", func() {
			rec := signedPost(webhookBody("inv-ghost", "COMPLETED"))

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("when corroboration fails", func() {
		It("responds 5xx so the gateway redelivers", func() {
			repo.put(pendingSession(intent.BusinessTrainerBooking, map[string]string{"trainer_id": "tr-42"}, "inv-001"))
			gw.statusErr = internal.NewGatewayUnavailableError("gateway unreachable during status query", nil)

			rec := signedPost(webhookBody("inv-001", "COMPLETED"))

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			stored, _ := repo.GetByID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
			Expect(stored.Status).To(Equal(session.StatusGatewayPending))
		})
	})
})
