package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gymflow/gym-api/internal/api"
	"gymflow/gym-api/internal/config"
	"gymflow/gym-api/internal/mail"
	"gymflow/gym-api/internal/metrics"
	"gymflow/gym-api/internal/notify"
	"gymflow/gym-api/internal/repository/mongo"
	"gymflow/gym-api/internal/service"
	"gymflow/gym-api/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// @title Gym Management API
// @version 1.0
// @description API for gym members, trainers and administrators: accounts, trainer association, weekly plans, completion tracking and chat.
// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logrus.Fatalf("could not load config: %v", err)
	}
	log := newLogger(cfg.Log, cfg.Server.Mode)
	log.Info("Starting gym API server...")

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.WithError(err).Fatal("could not connect to MongoDB")
	}
	defer func() {
		log.Info("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.WithError(err).Error("failed to disconnect MongoDB")
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.WithField("database", cfg.Database.Name).Info("Database connection established")

	// --- Ensure Indexes ---
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := mongo.EnsureIndexes(ctx, appDB); err != nil {
			log.WithError(err).Error("index creation failed")
			return
		}
		log.Info("Index creation completed")
	}()

	// --- Storage ---
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	imageStorage, err := storage.NewS3Storage(initCtx, cfg.S3, log)
	cancelInit()
	if err != nil {
		log.WithError(err).Fatal("failed to initialize S3 storage")
	}
	chatFS := afero.NewOsFs()
	chatBaseURL := strings.TrimRight(cfg.Server.PublicURL, "/") + "/uploads/chat"
	chatStorage, err := storage.NewLocalStorage(chatFS, cfg.Uploads.ChatDir, chatBaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize chat upload directory")
	}

	// --- Notifications and mail ---
	hub := notify.NewHub(log, allowedOrigin(cfg.Frontend.URL))
	defer hub.Close()
	mailer := mail.NewSMTPMailer(cfg.Mail)

	// --- Repositories ---
	userRepo := mongo.NewMongoUserRepository(appDB)
	requestRepo := mongo.NewMongoDisassociationRepository(appDB)
	planRepo := mongo.NewMongoWorkoutPlanRepository(appDB)
	sessionRepo := mongo.NewMongoWorkoutSessionRepository(appDB)
	completionRepo := mongo.NewMongoCompletionRepository(appDB)
	messageRepo := mongo.NewMongoMessageRepository(appDB)

	// --- Services ---
	authService := service.NewAuthService(userRepo, mailer, hub, service.AuthConfig{
		JWTSecret:   cfg.JWT.Secret,
		TokenTTL:    cfg.JWT.Expiration,
		RememberTTL: cfg.JWT.RememberExpiration,
		FrontendURL: cfg.Frontend.URL,
	}, log)
	userService := service.NewUserService(userRepo, planRepo, sessionRepo, imageStorage, hub, log, cfg.Uploads.ImageMaxBytes)
	associationService := service.NewAssociationService(userRepo, requestRepo, planRepo, sessionRepo, hub, log)
	planService := service.NewPlanService(userRepo, planRepo, sessionRepo, hub, log)
	completionService := service.NewCompletionService(userRepo, planRepo, sessionRepo, completionRepo, imageStorage, hub, log, cfg.Uploads.ImageMaxBytes)
	chatService := service.NewChatService(userRepo, messageRepo, chatStorage, hub, log, cfg.Uploads.ChatMaxBytes)

	if cfg.Admin.Email != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		created, err := authService.EnsureAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("failed to bootstrap admin account")
		}
		if created {
			log.WithField("email", cfg.Admin.Email).Info("Admin account created")
		}
	}

	// --- Gin Engine ---
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(log), metrics.Middleware())

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	stopCleanup := make(chan struct{})
	limiter.StartCleanup(10*time.Minute, stopCleanup)
	defer close(stopCleanup)

	api.SetupRoutes(router, api.Dependencies{
		Auth:        authService,
		Users:       userService,
		Association: associationService,
		Plans:       planService,
		Completions: completionService,
		Chat:        chatService,
		Hub:         hub,
		Cookie:      cfg.Cookie,
		RateLimiter: limiter,
		ChatFS:      chatFS,
		ChatDir:     cfg.Uploads.ChatDir,
		Log:         log,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket connections are long lived.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.WithField("address", cfg.Server.Address).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	log.Info("Server exiting")
}

func newLogger(cfg config.LogConfig, mode string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.Format == "json" || mode == gin.ReleaseMode {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// allowedOrigin accepts same-origin requests and the configured frontend.
func allowedOrigin(frontendURL string) func(r *http.Request) bool {
	frontendURL = strings.TrimRight(frontendURL, "/")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || frontendURL == "" || strings.EqualFold(strings.TrimRight(origin, "/"), frontendURL)
	}
}
