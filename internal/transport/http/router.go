package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/matrimony-api/internal/application/admin"
	"github.com/matrimony-api/internal/application/astrology"
	"github.com/matrimony-api/internal/application/auth"
	"github.com/matrimony-api/internal/application/broker"
	"github.com/matrimony-api/internal/application/ledger"
	"github.com/matrimony-api/internal/application/payment"
	"github.com/matrimony-api/internal/application/profile"
	"github.com/matrimony-api/internal/config"
	"github.com/matrimony-api/internal/domain"
	"github.com/matrimony-api/internal/transport/http/handler"
	appmiddleware "github.com/matrimony-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handler.SignatureHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider)
	jobMw := appmiddleware.InternalJob(cfg.InternalSecret, deps.Cache)

	// 5 requests/second, burst of 10, applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:    deps.UserRepo,
		Cache:       deps.Cache,
		Limiter:     deps.OTPLimiter,
		Mailer:      deps.Mailer,
		SMS:         deps.SMSSender,
		Signer:      deps.JWTProvider,
		OTPTTL:      cfg.OTP.TTL,
		VerifiedTTL: cfg.OTP.VerifiedTTL,
		CountryCode: cfg.OTP.CountryCode,
	})
	ledgerSvc := ledger.NewService(ledger.ServiceDeps{UserRepo: deps.UserRepo, Mailer: deps.Mailer})
	astroSvc := astrology.NewService(astrology.ServiceDeps{
		UserRepo:      deps.UserRepo,
		Locator:       deps.Geo,
		Ephemeris:     deps.Ephemeris,
		Generator:     deps.LLM,
		Pending:       deps.Cache,
		Dispatcher:    deps.Dispatcher,
		Mailer:        deps.Mailer,
		BusinessZone:  deps.BusinessZone,
		DelayOverride: cfg.Astrology.DelayOverride,
	})
	paymentSvc := payment.NewService(payment.ServiceDeps{
		Gateway:    deps.Gateway,
		Cache:      deps.Cache,
		Dispatcher: deps.Dispatcher,
		Completers: map[string]payment.Completer{
			domain.PurposeRegistration: authSvc,
			domain.PurposeInterests:    ledgerSvc,
			domain.PurposeAstrology:    astroSvc,
		},
		Currency:       cfg.Payment.Currency,
		KeyID:          cfg.Payment.KeyID,
		PendingTTL:     cfg.Payment.PendingTTL,
		ReconcileDelay: cfg.Payment.ReconcileDelay,
	})
	profileSvc := profile.NewService(profile.ServiceDeps{
		UserRepo:   deps.UserRepo,
		ImageStore: deps.ImageStore,
		Mailer:     deps.Mailer,
	})
	brokerSvc := broker.NewService(broker.ServiceDeps{
		BrokerRepo:      deps.BrokerRepo,
		ImageStore:      deps.ImageStore,
		Mailer:          deps.Mailer,
		Signer:          deps.JWTProvider,
		Dispatcher:      deps.Dispatcher,
		CompletionDelay: cfg.BrokerCompletionDelay,
	})
	adminSvc := admin.NewService(admin.ServiceDeps{
		UserRepo:     deps.UserRepo,
		Mailer:       deps.Mailer,
		SupportEmail: cfg.SupportEmail,
	})

	healthH := handler.NewHealthHandler(deps.HealthChecks)
	otpH := handler.NewOTPHandler(authSvc)
	pwH := handler.NewPasswordResetHandler(authSvc)
	userH := handler.NewUserHandler(authSvc)
	sessionH := handler.NewSessionHandler(authSvc)
	profileH := handler.NewProfileHandler(profileSvc)
	interestH := handler.NewInterestHandler(ledgerSvc, paymentSvc)
	paymentH := handler.NewPaymentHandler(paymentSvc)
	astroH := handler.NewAstrologyHandler(astroSvc)
	brokerH := handler.NewBrokerHandler(brokerSvc)
	adminH := handler.NewAdminHandler(adminSvc)
	jobH := handler.NewJobHandler(paymentSvc, astroSvc, brokerSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/otp/registration/send", otpH.SendRegistration)
		r.With(sensitiveRL.Limit).Post("/otp/registration/verify", otpH.VerifyRegistration)
		r.With(sensitiveRL.Limit).Post("/password-reset/{action}", pwH.Action)
		r.With(sensitiveRL.Limit).Post("/users", userH.Register)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
		r.With(sensitiveRL.Limit).Post("/report", adminH.Report)

		r.With(sensitiveRL.Limit).Post("/brokers", brokerH.Register)
		r.With(sensitiveRL.Limit).Post("/brokers/login", brokerH.Login)
		r.With(sensitiveRL.Limit).Post("/brokers/id-proofs", brokerH.UploadIDProofs)
		r.Get("/brokers/availability", brokerH.CheckAvailability)
		r.Get("/brokers/referrals/{id}", brokerH.ValidateReferral)

		r.With(sensitiveRL.Limit).Post("/payments/orders", paymentH.CreateOrder)
		r.Get("/payments/orders/{id}/status", paymentH.Status)
		r.Post("/payments/webhook", paymentH.Webhook)

		// ── Delayed-job callbacks (shared secret + nonce) ────────────────────
		r.Route("/internal/jobs", func(r chi.Router) {
			r.Use(appmiddleware.WriteDeadline(cfg.JobWriteTimeout))
			r.Use(jobMw)
			r.Post("/"+domain.JobPaymentReconcile, jobH.PaymentReconcile)
			r.Post("/"+domain.JobAstrology, jobH.Astrology)
			r.Post("/"+domain.JobBrokerCompletion, jobH.BrokerCompletion)
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleBroker))
				r.Post("/brokers/me/id-proofs", brokerH.UploadIDProofs)
			})

			// Members
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleUser, domain.RoleAdmin))

				r.Get("/profiles/me", profileH.Me)
				r.Put("/profiles/me", profileH.Update)
				r.Post("/profiles/me/images", profileH.UploadImages)
				r.Post("/profiles/discover", profileH.Discover)
				r.Post("/profiles/hide", profileH.Hide)
				r.Get("/profiles/{id}", profileH.Get)
				r.Get("/account", profileH.Account)
				r.Delete("/account", profileH.DeleteAccount)

				r.Post("/interests/send", interestH.Send)
				r.Post("/interests/respond", interestH.Respond)
				r.Post("/interests/view-contact", interestH.ViewContact)
				r.Post("/interests/purchase", interestH.Purchase)
				r.Get("/interests/balance", interestH.Balance)
				r.Get("/interests/invitations", interestH.Invitations)
				r.Get("/interests/viewed", interestH.Viewed)

				r.Post("/astrology", astroH.Submit)
				r.Get("/astrology", astroH.List)
			})

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Post("/admin/users/{id}/corrupt", adminH.ToggleCorrupted)
				r.Post("/admin/users/{id}/verify", adminH.Verify)
			})
		})
	})

	return r
}
