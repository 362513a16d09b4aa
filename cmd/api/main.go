package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	_ "github.com/accountd/accountd/docs" // Swagger docs (generated)
	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/database"
	"github.com/accountd/accountd/internal/email"
	httpServer "github.com/accountd/accountd/internal/http"
	"github.com/accountd/accountd/internal/logging"
	"github.com/accountd/accountd/internal/profile"
	"github.com/accountd/accountd/internal/ratelimit"
	"github.com/accountd/accountd/internal/user"
)

// @title           Account Service API
// @version         1.0
// @description     User account backend with registration, token auth, email verification and profile management.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
	)

	// Initialize database connection
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Initialize Redis connection
	redisClient, err := initRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	// Initialize repositories
	userRepo := user.NewRepository(db)
	var authRepo auth.RefreshTokenRepository
	if cfg.Auth.RefreshTokenStore == "postgres" {
		authRepo = auth.NewRepository(db)
	} else {
		authRepo = auth.NewRedisRepository(redisClient)
	}
	passwordResetRepo := auth.NewPasswordResetRepository(redisClient)

	// Initialize rate limiter
	rateLimiter := ratelimit.NewLimiter(redisClient)

	// Initialize PASETO service
	pasetoService, err := auth.NewPasetoService(cfg.Auth.PasetoKey)
	if err != nil {
		return fmt.Errorf("failed to initialize PASETO service: %w", err)
	}

	// Initialize email service
	emailService := email.NewService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.FrontendURL,
	)

	passwordPolicy := auth.PasswordPolicy{
		MinLength:    cfg.Auth.PasswordMinLength,
		RequireDigit: cfg.Auth.PasswordRequireDigit,
	}

	// Initialize auth service
	authService := auth.NewService(
		userRepo,
		authRepo,
		passwordResetRepo,
		pasetoService,
		emailService,
		logger,
		passwordPolicy,
		cfg.Auth.AccessTokenDuration,
		cfg.Auth.RefreshTokenDuration,
	)

	// Initialize profile stack
	blobStore, err := profile.NewDiskStore(cfg.Upload.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize upload storage: %w", err)
	}
	imageNormalizer := profile.NewImageNormalizer(
		cfg.Upload.MaxImageBytes,
		cfg.Upload.MaxImageDimension,
		cfg.Upload.JPEGQuality,
	)
	profileService := profile.NewService(userRepo, blobStore, imageNormalizer, logger)

	// Initialize HTTP handlers
	authHandler := auth.NewHandler(
		authService,
		rateLimiter,
		logger,
		!cfg.Server.IsDevelopment(), // isProduction
		cfg.Auth.AccessTokenDuration,
		cfg.Auth.RefreshTokenDuration,
	)
	authMiddleware := auth.NewMiddleware(pasetoService)
	profileHandler := profile.NewHandler(profileService, logger)

	// Initialize router
	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, profileHandler, logger)

	// Initialize HTTP server
	server := httpServer.NewServer(&cfg.Server, router, logger)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received shutdown signal", "signal", sig.String())

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
