package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-shop-auth/internal/application/auth"
	"github.com/go-shop-auth/internal/config"
	"github.com/go-shop-auth/internal/domain"
	"github.com/go-shop-auth/internal/transport/http/handler"
	appmiddleware "github.com/go-shop-auth/internal/transport/http/middleware"
	"github.com/unrolled/secure"
	"golang.org/x/time/rate"
)

// NewAuthService wires the auth service from the router dependencies.
func NewAuthService(cfg *config.Config, deps *Deps) auth.Service {
	svcDeps := auth.ServiceDeps{
		UserRepo:      deps.UserRepo,
		OTPStore:      deps.OTPStore,
		Mailer:        deps.Mailer,
		JWTProvider:   deps.JWTProvider,
		OTPTTL:        cfg.OTPTTL,
		NotifyTimeout: cfg.NotifyTimeout,
		BcryptCost:    cfg.BcryptCost,
	}
	if deps.Metrics != nil {
		svcDeps.Metrics = deps.Metrics
	}
	return auth.NewService(svcDeps)
}

// NewRouter builds the application router. The returned stop func releases
// the rate limiter's background cleanup and must be called on shutdown.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, func()) {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(deps.Metrics.Middleware)
	r.Use(secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "no-referrer",
		STSSeconds:         31536000,
		IsDevelopment:      !cfg.IsProduction(),
	}).Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	clientIP := appmiddleware.NewClientIP(cfg.TrustedProxyPrefixes())
	// Code issuance sends email: 1 request/second, burst of 5 per IP.
	issueRL := appmiddleware.NewRateLimiter(rate.Limit(1), 5, clientIP)
	// Code and password guesses: 10 per minute per IP.
	guessRL := appmiddleware.SlidingWindow(10, time.Minute, clientIP)

	authSvc := NewAuthService(cfg, deps)

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc)
	adminH := handler.NewAdminHandler(authSvc)

	r.Get("/health", healthH.Health)
	r.Handle("/metrics", deps.Metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.With(issueRL.Limit).Post("/register", authH.Register)
		r.With(guessRL).Post("/login", authH.Login)
		r.With(issueRL.Limit).Post("/generate-otp", authH.GenerateOTP)
		r.With(guessRL).Post("/verify-otp", authH.VerifyOTP)
		r.With(issueRL.Limit).Post("/generate-registration-otp", authH.GenerateRegistrationOTP)
		r.With(guessRL).Post("/verify-registration-otp", authH.VerifyRegistrationOTP)

		r.With(appmiddleware.Auth(deps.JWTProvider)).Get("/me", authH.Me)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(appmiddleware.Auth(deps.JWTProvider))
		r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

		r.Get("/accounts/{id}", adminH.GetAccount)
	})

	return r, issueRL.Stop
}
