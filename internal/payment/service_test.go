package payment_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fitmarket/payment-orchestration/internal"
	"github.com/fitmarket/payment-orchestration/internal/clientcontext"
	gatewaytypes "github.com/fitmarket/payment-orchestration/internal/core/datamodel/gateway"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/intent"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/session"
	"github.com/fitmarket/payment-orchestration/internal/core/events"
	"github.com/fitmarket/payment-orchestration/internal/payment"
	"github.com/fitmarket/payment-orchestration/internal/redirect"
)

var _ = Describe("CheckoutService", func() {
	var (
		repo    *mockSessionRepository
		gw      *mockGatewayClient
		applier *mockEffectApplier
		service *payment.CheckoutService
	)

	const maxVerifyAttempts = 3

	desktopMeta := clientcontext.RequestMeta{
		Host:      "api.fitmarket.example.com",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	}

	BeforeEach(func() {
		repo = newMockSessionRepository()
		gw = &mockGatewayClient{
			createResp: &gatewaytypes.InvoiceData{
				ID:          "inv-100",
				Status:      gatewaytypes.InvoiceStatusPending,
				RedirectURL: "https://gateway.example.com/pay/inv-100",
			},
		}
		applier = &mockEffectApplier{}
		logger := testLogger()
		resolver := clientcontext.NewResolver(&internal.CheckoutConfig{
			WebBaseURL:        "https://fitmarket.example.com",
			MobileWebBaseURL:  "https://m.fitmarket.example.com",
			AppDeepLinkScheme: "fitmarket",
		}, logger)
		engine := payment.NewEngine(repo, gw, applier, events.NewEventBus(logger), logger)
		service = payment.NewCheckoutService(repo, gw, resolver, engine, maxVerifyAttempts, logger)
	})

	Describe("CreateSession", func() {
		Context("with a valid trainer booking from a desktop browser", func() {
			It("creates the session, claims the invoice and returns the redirect", func() {
				req := validRequest("trainer_booking", map[string]string{"trainer_id": "tr-42"})

				resp, err := service.CreateSession(context.Background(), req, desktopMeta)

				Expect(err).ToNot(HaveOccurred())
				Expect(resp.SessionID).ToNot(BeEmpty())
				Expect(resp.RedirectURL).To(Equal("https://gateway.example.com/pay/inv-100"))
				Expect(resp.RedirectAction).To(Equal(redirect.ActionNewTab))

				stored, err := repo.GetByID(resp.SessionID)
				Expect(err).ToNot(HaveOccurred())
				Expect(stored.Status).To(Equal(session.StatusGatewayPending))
				Expect(stored.GatewayInvoiceID).ToNot(BeNil())
				Expect(*stored.GatewayInvoiceID).To(Equal("inv-100"))
			})

			It("uses the session id as the gateway idempotency key", func() {
				req := validRequest("trainer_booking", map[string]string{"trainer_id": "tr-42"})

				resp, err := service.CreateSession(context.Background(), req, desktopMeta)

				Expect(err).ToNot(HaveOccurred())
				Expect(gw.lastCreateReq.IdempotencyKey).To(Equal(resp.SessionID))
				Expect(gw.lastCreateReq.Metadata["session_id"]).To(Equal(resp.SessionID))
				Expect(gw.lastCreateReq.Metadata["business_type"]).To(Equal("trainer_booking"))
			})

			It("persists the session before calling the gateway", func() {
				var sessionsAtCreateTime int
				gw.createHook = func() {
					stats, _ := repo.GetSessionStats()
					sessionsAtCreateTime = int(stats[session.StatusCreated])
				}
				req := validRequest("trainer_booking", map[string]string{"trainer_id": "tr-42"})

				_, err := service.CreateSession(context.Background(), req, desktopMeta)

				Expect(err).ToNot(HaveOccurred())
				Expect(sessionsAtCreateTime).To(Equal(1))
			})

			It("snapshots the intent byte-for-byte into the session row", func() {
				req := validRequest("trainer_booking", map[string]string{"trainer_id": "tr-42"})

				resp, err := service.CreateSession(context.Background(), req, desktopMeta)
				Expect(err).ToNot(HaveOccurred())

				stored, _ := repo.GetByID(resp.SessionID)
				var snap intent.PaymentIntent
				Expect(json.Unmarshal(stored.Intent, &snap)).To(Succeed())
				Expect(snap.Amount).To(Equal(int64(250000)))
				Expect(snap.BusinessType).To(Equal(intent.BusinessTrainerBooking))
				Expect(snap.CallbackURLs.Success).To(Equal("https://fitmarket.example.com/checkout/success"))
				Expect(snap.Customer.Email).To(Equal("budi@example.com"))
			})
		})

		Context("from an embedded app", func() {
			It("deep links and sends deep-link callbacks to the gateway", func() {
				req := validRequest("gym_membership", map[string]string{"gym_id": "gym-7", "plan_id": "monthly"})
				req.RuntimeHint = clientcontext.HintEmbeddedApp

				resp, err := service.CreateSession(context.Background(), req, desktopMeta)

				Expect(err).ToNot(HaveOccurred())
				Expect(resp.RedirectAction).To(Equal(redirect.ActionDeepLink))
				Expect(gw.lastCreateReq.SuccessURL).To(HavePrefix("fitmarket://payment-success"))
			})
		})

		Context("from a mobile browser", func() {
			It("redirects in the same window", func() {
				req := validRequest("trainer_booking", map[string]string{"trainer_id": "tr-42"})
				meta := clientcontext.RequestMeta{
					Host:      "api.fitmarket.example.com",
					UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)",
				}

				resp, err := service.CreateSession(context.Background(), req, meta)

				Expect(err).ToNot(HaveOccurred())
				Expect(resp.RedirectAction).To(Equal(redirect.ActionSameWindow))
			})
		})

		Context("when the request is invalid", func() {
			It("creates nothing", func() {
				req := validRequest("trainer_booking", nil)

				_, err := service.CreateSession(context.Background(), req, desktopMeta)

				Expect(err).To(HaveOccurred())
				stats, _ := repo.GetSessionStats()
				Expect(stats).To(BeEmpty())
				Expect(gw.createCalls).To(BeZero())
			})
		})

		Context("when invoice creation fails at the gateway", func() {
			It("leaves the session in created state and propagates the error", func() {
				gw.createErr = internal.NewGatewayUnavailableError("gateway unreachable during invoice creation", nil)
				req := validRequest("trainer_booking", map[string]string{"trainer_id": "tr-42"})

				_, err := service.CreateSession(context.Background(), req, desktopMeta)

				Expect(err).To(HaveOccurred())
				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(internal.ErrorTypeGatewayDown))

				stats, _ := repo.GetSessionStats()
				Expect(stats[session.StatusCreated]).To(Equal(int64(1)))
			})
		})
	})

	Describe("VerifySession", func() {
		seedPending := func(invoiceID string) string {
			sess := pendingSession(intent.BusinessTrainerBooking, map[string]string{"trainer_id": "tr-42"}, invoiceID)
			repo.put(sess)
			return sess.ID
		}

		Context("when the gateway confirms completion", func() {
			It("returns COMPLETED and triggers the side effect", func() {
				id := seedPending("inv-200")
				gw.statusResp = &gatewaytypes.InvoiceStatusData{ID: "inv-200", Status: gatewaytypes.InvoiceStatusCompleted, Amount: 250000}

				resp, err := service.VerifySession(context.Background(), id)

				Expect(err).ToNot(HaveOccurred())
				Expect(resp.Status).To(Equal(payment.VerifyCompleted))
				Expect(resp.Unconfirmed).To(BeFalse())
				Expect(applier.bookingCalls).To(Equal(1))
			})
		})

		Context("when the gateway still reports pending", func() {
			It("returns PENDING as a valid outcome", func() {
				id := seedPending("inv-201")
				gw.statusResp = &gatewaytypes.InvoiceStatusData{ID: "inv-201", Status: gatewaytypes.InvoiceStatusPending}

				resp, err := service.VerifySession(context.Background(), id)

				Expect(err).ToNot(HaveOccurred())
				Expect(resp.Status).To(Equal(payment.VerifyPending))
				Expect(resp.Unconfirmed).To(BeFalse())
			})

			It("flags the response unconfirmed on exactly the last budgeted poll", func() {
				id := seedPending("inv-202")
				gw.statusResp = &gatewaytypes.InvoiceStatusData{ID: "inv-202", Status: gatewaytypes.InvoiceStatusPending}

				var resp *payment.VerifySessionResponse
				var err error
				for i := 0; i < maxVerifyAttempts-1; i++ {
					resp, err = service.VerifySession(context.Background(), id)
					Expect(err).ToNot(HaveOccurred())
				}
				Expect(resp.Status).To(Equal(payment.VerifyPending))
				Expect(resp.Unconfirmed).To(BeFalse())

				resp, err = service.VerifySession(context.Background(), id)
				Expect(err).ToNot(HaveOccurred())

				Expect(resp.Status).To(Equal(payment.VerifyPending))
				Expect(resp.Unconfirmed).To(BeTrue())
			})
		})

		Context("when the gateway is unreachable during the poll", func() {
			It("reports PENDING instead of an error", func() {
				id := seedPending("inv-203")
				gw.statusErr = internal.NewGatewayUnavailableError("gateway unreachable during status query", nil)

				resp, err := service.VerifySession(context.Background(), id)

				Expect(err).ToNot(HaveOccurred())
				Expect(resp.Status).To(Equal(payment.VerifyPending))
			})
		})

		Context("when the gateway answer is malformed", func() {
			It("surfaces the protocol error", func() {
				id := seedPending("inv-204")
				gw.statusErr = internal.NewGatewayProtocolError("unknown invoice status", nil)

				_, err := service.VerifySession(context.Background(), id)

				Expect(err).To(HaveOccurred())
				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(internal.ErrorTypeGatewayProtocol))
			})
		})

		Context("when the session does not exist", func() {
			It("returns not found", func() {
				_, err := service.VerifySession(context.Background(), "ffffffff-0000-0000-0000-000000000000")

				Expect(err).To(HaveOccurred())
				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(internal.ErrorTypeNotFound))
			})
		})
	})

	Describe("GetSession", func() {
		It("projects the stored session", func() {
			sess := pendingSession(intent.BusinessServiceOrder, map[string]string{"service_id": "svc-9"}, "inv-300")
			repo.put(sess)

			view, err := service.GetSession(sess.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(view.ID).To(Equal(sess.ID))
			Expect(view.Status).To(Equal(session.StatusGatewayPending))
			Expect(view.BusinessType).To(Equal("service_order"))
			Expect(*view.GatewayInvoiceID).To(Equal("inv-300"))
		})

		It("returns not found for an unknown id", func() {
			_, err := service.GetSession("ffffffff-0000-0000-0000-000000000000")

			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeNotFound))
		})
	})
})
