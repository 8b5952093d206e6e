package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fitmarket/payment-orchestration/internal"
	"github.com/fitmarket/payment-orchestration/internal/clientcontext"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/session"
	paymentPkg "github.com/fitmarket/payment-orchestration/internal/payment"
	"github.com/fitmarket/payment-orchestration/internal/redirect"
)

type mockCheckoutService struct {
	createResp *paymentPkg.CreateSessionResponse
	createErr  error
	lastMeta   clientcontext.RequestMeta
	verifyResp *paymentPkg.VerifySessionResponse
	verifyErr  error
	viewResp   *paymentPkg.SessionView
	viewErr    error
}

func (m *mockCheckoutService) CreateSession(ctx context.Context, req *paymentPkg.CreateSessionRequest, meta clientcontext.RequestMeta) (*paymentPkg.CreateSessionResponse, error) {
	m.lastMeta = meta
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createResp, nil
}

func (m *mockCheckoutService) VerifySession(ctx context.Context, sessionID string) (*paymentPkg.VerifySessionResponse, error) {
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return m.verifyResp, nil
}

func (m *mockCheckoutService) GetSession(sessionID string) (*paymentPkg.SessionView, error) {
	if m.viewErr != nil {
		return nil, m.viewErr
	}
	return m.viewResp, nil
}

var _ = Describe("Handler", func() {
	var (
		service *mockCheckoutService
		handler *paymentPkg.Handler
		router  *chi.Mux
	)

	BeforeEach(func() {
		service = &mockCheckoutService{}
		handler = paymentPkg.NewHandler(service, testLogger())

		router = chi.NewRouter()
		router.Post("/api/v1/checkout/sessions", handler.CreateSession)
		router.Get("/api/v1/checkout/sessions/{id}/verify", handler.VerifySession)
		router.Get("/api/v1/sessions/{id}", handler.GetSession)
	})

	Describe("CreateSession", func() {
		It("responds 201 with the redirect decision", func() {
			service.createResp = &paymentPkg.CreateSessionResponse{
				SessionID:      "sess-1",
				RedirectURL:    "https://gateway.example.com/pay/inv-1",
				RedirectAction: redirect.ActionNewTab,
			}
			body, _ := json.Marshal(validRequest("trainer_booking", map[string]string{"trainer_id": "tr-42"}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", bytes.NewReader(body))
			req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			var resp paymentPkg.CreateSessionResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.SessionID).To(Equal("sess-1"))
			Expect(resp.RedirectAction).To(Equal(redirect.ActionNewTab))
		})

		It("forwards the request host and user agent to the service", func() {
			service.createResp = &paymentPkg.CreateSessionResponse{SessionID: "sess-1"}
			body, _ := json.Marshal(validRequest("trainer_booking", map[string]string{"trainer_id": "tr-42"}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", bytes.NewReader(body))
			req.Host = "api.fitmarket.example.com"
			req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(service.lastMeta.Host).To(Equal("api.fitmarket.example.com"))
			Expect(service.lastMeta.UserAgent).To(ContainSubstring("iPhone"))
		})

		It("responds 400 on an unparseable body", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", bytes.NewReader([]byte("{broken")))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps validation errors from the service to 400", func() {
			service.createErr = internal.NewValidationFieldError("payload.trainer_id",
				"trainer_id is required for trainer_booking", internal.ErrCodeMissingPayloadField)
			body, _ := json.Marshal(validRequest("trainer_booking", nil))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("trainer_id"))
		})

		It("maps gateway unavailability to 502", func() {
			service.createErr = internal.NewGatewayUnavailableError("gateway unreachable during invoice creation", nil)
			body, _ := json.Marshal(validRequest("trainer_booking", map[string]string{"trainer_id": "tr-42"}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
		})

		It("hides non-app errors behind an opaque 500", func() {
			service.createErr = context.DeadlineExceeded
			body, _ := json.Marshal(validRequest("trainer_booking", map[string]string{"trainer_id": "tr-42"}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).ToNot(ContainSubstring("deadline"))
		})
	})

	Describe("VerifySession", func() {
		It("responds 200 with the reconciled status", func() {
			service.verifyResp = &paymentPkg.VerifySessionResponse{
				SessionID: "sess-1",
				Status:    paymentPkg.VerifyCompleted,
			}

			req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/sessions/sess-1/verify", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp paymentPkg.VerifySessionResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Status).To(Equal(paymentPkg.VerifyCompleted))
		})

		It("maps an unknown session to 404", func() {
			service.verifyErr = internal.ErrSessionNotFound

			req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/sessions/sess-missing/verify", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GetSession", func() {
		It("responds 200 with the session view", func() {
			service.viewResp = &paymentPkg.SessionView{
				ID:     "sess-1",
				Status: session.StatusGatewayPending,
			}

			req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess-1", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			var view paymentPkg.SessionView
			Expect(json.Unmarshal(rec.Body.Bytes(), &view)).To(Succeed())
			Expect(view.Status).To(Equal(session.StatusGatewayPending))
		})
	})
})
