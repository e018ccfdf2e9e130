package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anon-social-backend/internal/config"
	"anon-social-backend/internal/handlers"
	"anon-social-backend/internal/middleware"
	"anon-social-backend/internal/repository"
	"anon-social-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

func Run() {
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
	setupLogger(cfg.Log)

	if cfg.FaceGate.URL == "" {
		log.Fatal().Msg("face_gate.url is required")
	}

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	if err := repository.EnsureSchema(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database schema")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// Initialize integrations
	wsHub := services.NewWSHub()
	identity := services.NewJWTIdentity(cfg.JWT.Secret)
	faceDetector := services.NewHTTPFaceDetector(cfg.FaceGate.URL, cfg.FaceGate.Timeout)

	var notifier services.Notifier = services.NopNotifier{}
	if cfg.APNS.Enabled() {
		apns, err := services.NewAPNSNotifier(cfg.APNS.KeyFile, cfg.APNS.KeyID, cfg.APNS.TeamID, cfg.APNS.Topic, cfg.APNS.Production)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create push notifier")
		}
		notifier = apns
	} else {
		log.Warn().Msg("APNs not configured, push notifications disabled")
	}

	var archive services.MediaArchive
	if cfg.AWS.S3Bucket != "" {
		s3Archive, err := services.NewS3Archive(
			context.Background(),
			cfg.AWS.Region,
			cfg.AWS.S3Bucket,
			cfg.AWS.AccessKey,
			cfg.AWS.SecretKey,
			cfg.AWS.Endpoint,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create snap archive")
		}
		archive = s3Archive
	}

	// Initialize services
	userService := services.NewUserService(userRepo)
	graphService := services.NewFriendGraphService(userRepo, wsHub, notifier)
	disclosureService := services.NewDisclosureService(userRepo, convRepo, messageRepo, graphService, wsHub)
	snapService := services.NewSnapService(
		userRepo,
		convRepo,
		messageRepo,
		faceDetector,
		archive,
		notifier,
		wsHub,
		disclosureService,
		services.SnapConfig{
			Workers:       cfg.Snap.Workers,
			DedupeWindow:  cfg.Snap.DedupeWindow,
			RatePerMinute: cfg.Snap.RatePerMinute,
			Burst:         cfg.Snap.Burst,
		},
	)

	// Metrics
	services.RegisterMetrics(prometheus.DefaultRegisterer)
	middleware.RegisterMetrics(prometheus.DefaultRegisterer)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	friendsHandler := handlers.NewFriendsHandler(graphService)
	conversationHandler := handlers.NewConversationHandler(disclosureService)
	snapHandler := handlers.NewSnapHandler(snapService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, identity, disclosureService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(chiMiddleware.RequestSize(cfg.Server.MaxBodyBytes))
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(identity))

		r.Post("/users", userHandler.CreateUser)
		r.Get("/users/me", userHandler.GetMe)
		r.Put("/users/me/push-token", userHandler.UpdatePushToken)
		r.Get("/users/discover", userHandler.Discover)

		r.Get("/friends", friendsHandler.GetFriends)
		r.Delete("/friends/{user_id}", friendsHandler.Unfriend)
		r.Post("/friends/requests", friendsHandler.SendRequest)
		r.Delete("/friends/requests/{user_id}", friendsHandler.CancelRequest)
		r.Post("/friends/requests/{user_id}/accept", friendsHandler.AcceptRequest)
		r.Post("/friends/requests/{user_id}/reject", friendsHandler.RejectRequest)

		r.Get("/conversations", conversationHandler.ListConversations)
		r.Post("/conversations", conversationHandler.StartConversation)
		r.Get("/conversations/{conversation_id}", conversationHandler.GetConversation)
		r.Post("/conversations/{conversation_id}/reveal", conversationHandler.Reveal)
		r.Post("/conversations/{conversation_id}/messages", conversationHandler.SendMessage)

		r.Post("/snaps", snapHandler.SendSnap)
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	r.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
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

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger. When a log file is set, output is
// also written there as JSON with size-based rotation.
func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if cfg.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	}
	log.Logger = log.Output(out)

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// requestLogger logs one line per request through zerolog
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Info().
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
