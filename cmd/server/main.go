package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/ammar1510/parley/internal/api"
	"github.com/ammar1510/parley/internal/auth"
	"github.com/ammar1510/parley/internal/config"
	"github.com/ammar1510/parley/internal/database"
	"github.com/ammar1510/parley/internal/email"
	"github.com/ammar1510/parley/internal/logger"
	"github.com/ammar1510/parley/internal/ratelimit"
	"github.com/ammar1510/parley/internal/service"
)

var log = logger.New("server")

func main() {
	// Load environment variables from .env file
	envErr := godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))

	format := "text"
	if cfg.IsProduction() {
		format = "json"
	}
	logger.Init(os.Stdout, cfg.LogLevel, format)

	if envErr != nil {
		log.Info("No .env file found, using environment variables")
	}
	if err != nil {
		log.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	db, err := database.NewDatabase(ctx, database.DatabaseType(cfg.DBType), cfg.ConnString())
	if err != nil {
		log.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Connected to %s database successfully", cfg.DBType)

	issuer, err := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL)
	if err != nil {
		log.Error("Failed to create token issuer: %v", err)
		os.Exit(1)
	}

	mailer := email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	if cfg.SMTPHost == "" {
		log.Warn("SMTP_HOST not set, password reset emails will only be logged")
	}

	clock := service.SystemClock{}
	credentials := service.NewCredentialStore(db, issuer, mailer, clock, service.CredentialsConfig{
		FrontendURL:          cfg.FrontendURL,
		AppName:              cfg.AppName,
		ConcealUnknownEmails: cfg.ConcealUnknownEmails,
	})
	directory := service.NewDirectory(db, db, db, clock)
	ledger := service.NewLedger(db, directory, clock)

	routes := api.Routes{
		Issuer:   issuer,
		Auth:     api.NewAuthHandler(credentials),
		Chats:    api.NewChatHandler(directory),
		Messages: api.NewMessageHandler(ledger),
	}

	if cfg.RedisAddr != "" {
		loginLimiter, err := newLimiter(ctx, cfg, "parley:ratelimit:login", cfg.LoginRateLimitPerMinute)
		if err != nil {
			log.Error("Failed to create login rate limiter: %v", err)
			os.Exit(1)
		}
		defer loginLimiter.Close()

		resetLimiter, err := newLimiter(ctx, cfg, "parley:ratelimit:reset", cfg.ResetRateLimitPerMinute)
		if err != nil {
			log.Error("Failed to create reset rate limiter: %v", err)
			os.Exit(1)
		}
		defer resetLimiter.Close()

		routes.LoginLimiter = loginLimiter
		routes.ResetLimiter = resetLimiter
	} else {
		log.Warn("REDIS_ADDR not set, rate limiting disabled")
	}

	// Initialize router with default middleware (logger and recovery)
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.RegisterRoutes(router, routes)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Give the server 5 seconds to finish processing remaining requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
		return
	}

	log.Info("Server exited properly")
}

// newLimiter builds a per-minute limiter and checks that Redis answers.
func newLimiter(ctx context.Context, cfg config.Config, prefix string, perMinute int) (*ratelimit.FixedWindowLimiter, error) {
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, perMinute, time.Minute)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := limiter.Ping(pingCtx); err != nil {
		limiter.Close()
		return nil, err
	}
	return limiter, nil
}
