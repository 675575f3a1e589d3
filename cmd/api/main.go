package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tapfinity/tapfinity-api/internal/config"
	"github.com/tapfinity/tapfinity-api/internal/domain/account"
	"github.com/tapfinity/tapfinity-api/internal/domain/adminpin"
	"github.com/tapfinity/tapfinity-api/internal/domain/auth"
	"github.com/tapfinity/tapfinity-api/internal/domain/ledger"
	"github.com/tapfinity/tapfinity-api/internal/domain/payment"
	"github.com/tapfinity/tapfinity-api/internal/domain/provision"
	"github.com/tapfinity/tapfinity-api/internal/middleware"
	"github.com/tapfinity/tapfinity-api/internal/pkg/cardsecret"
	"github.com/tapfinity/tapfinity-api/internal/pkg/database"
	"github.com/tapfinity/tapfinity-api/internal/pkg/jwt"
	"github.com/tapfinity/tapfinity-api/internal/pkg/ratelimit"
	pkgresponse "github.com/tapfinity/tapfinity-api/internal/pkg/response"
	"github.com/tapfinity/tapfinity-api/internal/pkg/statushub"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Tap-Finity API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	hasher, err := cardsecret.NewHasher(cfg.CardSecretSalt)
	if err != nil {
		log.Fatal().Err(err).Msg("CARD_SECRET_SALT must be set")
	}

	// Redis gives the throttle a shared counter across instances; without
	// it each instance enforces the window on its own.
	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow)
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
		defer memLimiter.Close()
		limiter = memLimiter
	}

	// ---------- Status hub ----------
	hub := statushub.NewHub(redisClient)
	go hub.Run()
	defer hub.Close()

	// ---------- Repositories ----------
	accountRepo := account.NewRepository(db)
	adminPinRepo := adminpin.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)
	paymentRepo := payment.NewRepository(db)
	provisionRepo := provision.NewRepository(db)

	// ---------- Services ----------
	accountService := account.NewService(accountRepo)
	adminPinService := adminpin.NewService(adminPinRepo)
	ledgerService := ledger.NewService(ledgerRepo, hasher)
	paymentService := payment.NewService(paymentRepo, hasher, hub, cfg.PaymentRequestTTL)
	provisionService := provision.NewService(provisionRepo, accountService, adminPinService, hasher, hub, cfg.ProvisionRequestTTL)
	authService := auth.NewService(accountRepo, jwtService)

	// ---------- Handlers ----------
	authHandler := auth.NewHandler(authService, accountService)
	accountHandler := account.NewHandler(accountService, adminPinService, ledgerService)
	adminPinHandler := adminpin.NewHandler(adminPinService)
	ledgerHandler := ledger.NewHandler(ledgerService)
	paymentHandler := payment.NewHandler(paymentService, hub, limiter, cfg.AllowedOrigins)
	provisionHandler := provision.NewHandler(provisionService, hub, limiter, cfg.AllowedOrigins)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoints (before Compress)
	r.Get("/ws/payment-requests/{id}", paymentHandler.StatusStream)
	r.Get("/ws/provision-card/{id}", provisionHandler.StatusStream)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Mount("/auth", authHandler.Routes(authMiddleware))

		// card tap from a reader terminal
		r.Post("/nfc/authorize", paymentHandler.Authorize)

		r.Mount("/provision-card", provisionHandler.PublicRoutes())
		r.Mount("/transactions", ledgerHandler.Routes(authMiddleware))
		r.Mount("/user", accountHandler.SelfRoutes(authMiddleware))

		r.Route("/merchant", func(r chi.Router) {
			r.Mount("/payment-requests", paymentHandler.Routes(authMiddleware))

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware)
				r.Use(middleware.RequireMerchant())
				r.Get("/transactions", ledgerHandler.ListMerchant)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Mount("/users", accountHandler.Routes(authMiddleware))
			r.Mount("/provision-card", provisionHandler.AdminRoutes(authMiddleware))

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware)
				r.Use(middleware.RequireAdmin())
				r.Mount("/pin", adminPinHandler.Routes())
				r.Get("/merchants", accountHandler.ListMerchants)
				r.Get("/transactions", ledgerHandler.ListRecent)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}
}
