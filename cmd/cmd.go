package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifesignal-backend/internal/config"
	"lifesignal-backend/internal/handlers"
	"lifesignal-backend/internal/middleware"
	"lifesignal-backend/internal/push"
	"lifesignal-backend/internal/reminders"
	"lifesignal-backend/internal/repository"
	"lifesignal-backend/internal/services"

	firebase "firebase.google.com/go/v4"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Connect to database
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	if err := repository.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping Redis")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connection established")

	var app *firebase.App
	if cfg.NeedsFirebase() {
		app, err = services.NewFirebaseApp(ctx, cfg.Auth.FirebaseProject, cfg.Auth.CredentialsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Firebase")
		}
	}

	sender, err := newPushSender(ctx, cfg.Push, app)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create push sender")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	contactRepo := repository.NewContactRepository(db)

	// Initialize services
	userService := services.NewUserService(userRepo, cfg.JWT.Secret, cfg.CheckIn.DefaultInterval)
	scheduler := reminders.NewScheduler(rdb, sender, userRepo, log.Logger)
	hub := services.NewHub()
	syncService := services.NewSyncService(userRepo, contactRepo, hub, scheduler)
	sessions := services.NewSessionFactory(syncService, scheduler, userService)
	avatarService, err := services.NewAvatarService(ctx, userRepo, services.AvatarConfig{
		Region:    cfg.AWS.Region,
		Bucket:    cfg.AWS.S3Bucket,
		AccessKey: cfg.AWS.AccessKey,
		SecretKey: cfg.AWS.SecretKey,
		Endpoint:  cfg.AWS.Endpoint,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create avatar service")
	}

	var verifier middleware.TokenVerifier = userService
	if cfg.Auth.Provider == "firebase" {
		verifier, err = services.NewFirebaseVerifier(ctx, app)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Firebase verifier")
		}
	}

	go scheduler.Run(ctx, cfg.CheckIn.ReminderPollInterval)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService, sessions)
	checkInHandler := handlers.NewCheckInHandler(sessions)
	contactHandler := handlers.NewContactHandler(sessions)
	avatarHandler := handlers.NewAvatarHandler(avatarService)
	wsHandler := handlers.NewWebSocketHandler(sessions, verifier, cfg.CheckIn.StateRefresh)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", handlers.HealthCheck)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.Provider == "jwt" {
			r.Post("/users", userHandler.CreateUser)
		}

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(verifier))
			if cfg.Auth.Provider != "jwt" {
				r.Post("/users", userHandler.CreateUser)
			}

			r.Get("/me", userHandler.GetMe)
			r.Patch("/me", userHandler.UpdateProfile)
			r.Put("/me/notifications", userHandler.UpdateNotifications)
			r.Put("/me/push-token", userHandler.UpdatePushToken)
			r.Post("/me/code", userHandler.RegenerateCode)
			r.Post("/me/avatar", avatarHandler.UploadAvatar)

			r.Post("/checkin", checkInHandler.CheckIn)
			r.Put("/checkin/interval", checkInHandler.SetInterval)
			r.Post("/alert", checkInHandler.TriggerAlert)
			r.Delete("/alert", checkInHandler.ClearAlert)

			r.Get("/contacts", contactHandler.ListContacts)
			r.Post("/contacts", contactHandler.AddContact)
			r.Delete("/contacts/{id}", contactHandler.DeleteContact)
			r.Put("/contacts/{id}/roles", contactHandler.UpdateRoles)
			r.Post("/contacts/{id}/ping", contactHandler.SendPing)
			r.Delete("/contacts/{id}/ping", contactHandler.ClearPing)
			r.Post("/contacts/{id}/ping/respond", contactHandler.RespondToPing)
			r.Post("/pings/respond-all", contactHandler.RespondToAllPings)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("auth", cfg.Auth.Provider).
			Str("push", cfg.Push.Provider).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Stop the reminder dispatcher and close WebSocket sessions
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// newPushSender builds the sender for the configured push provider
func newPushSender(ctx context.Context, cfg config.PushConfig, app *firebase.App) (push.Sender, error) {
	switch cfg.Provider {
	case "apns":
		return push.NewAPNSProvider(cfg.APNS.KeyFile, cfg.APNS.KeyID, cfg.APNS.TeamID, cfg.APNS.Topic, cfg.APNS.Production)
	case "fcm":
		return push.NewFCMProvider(ctx, app)
	default:
		return push.NopSender{}, nil
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
