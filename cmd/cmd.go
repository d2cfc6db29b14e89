package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pabili-backend/internal/config"
	"pabili-backend/internal/handlers"
	"pabili-backend/internal/middleware"
	"pabili-backend/internal/repository"
	"pabili-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

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

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	errandRepo := repository.NewErrandRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Initialize services
	photoService, err := services.NewPhotoService(
		cfg.AWS.Region,
		cfg.AWS.S3Bucket,
		cfg.AWS.AccessKey,
		cfg.AWS.SecretKey,
		cfg.AWS.Endpoint,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create photo service")
	}
	userService := services.NewUserService(userRepo, cfg.JWT.Secret)
	notificationService := services.NewNotificationService(notificationRepo)
	errandService := services.NewErrandService(errandRepo, userRepo, notificationService, photoService)
	ratingService := services.NewRatingService(errandRepo, userRepo, notificationService)
	messageService := services.NewMessageService(messageRepo, errandRepo, notificationService)
	adminService := services.NewAdminService(userRepo, errandRepo)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	errandHandler := handlers.NewErrandHandler(errandService, ratingService)
	messageHandler := handlers.NewMessageHandler(messageService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	adminHandler := handlers.NewAdminHandler(adminService)
	metaHandler := handlers.NewMetaHandler(cfg.Polling)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/register", userHandler.Register)
		r.Post("/auth/login", userHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))

			r.Get("/me", userHandler.Me)
			r.Put("/me/address", userHandler.SaveAddress)
			r.Get("/client-config", metaHandler.ClientConfig)

			r.Post("/errands", errandHandler.Create)
			r.Get("/errands", errandHandler.ListMine)
			r.Get("/errands/nearby", errandHandler.ListNearby)
			r.Get("/agents/nearby", errandHandler.NearbyAgents)
			r.Get("/earnings", errandHandler.Earnings)

			r.Route("/errands/{errand_id}", func(r chi.Router) {
				r.Get("/", errandHandler.Get)
				r.Post("/accept", errandHandler.Accept)
				r.Put("/items/{item_id}/price", errandHandler.SetItemPrice)
				r.Post("/receipt", errandHandler.Complete)
				r.Post("/cancel", errandHandler.Cancel)
				r.Post("/rating", errandHandler.Rate)
				r.Get("/total", errandHandler.Total)
				r.Get("/messages", messageHandler.History)
				r.Post("/messages", messageHandler.Send)
			})

			r.Get("/notifications", notificationHandler.List)
			r.Get("/notifications/unread-count", notificationHandler.UnreadCount)
			r.Post("/notifications/{notification_id}/read", notificationHandler.MarkRead)
			r.Post("/notifications/read-all", notificationHandler.MarkAllRead)

			// Admin routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(userService))
				r.Get("/admin/stats", adminHandler.Stats)
				r.Get("/admin/users", adminHandler.ListUsers)
				r.Get("/admin/errands", adminHandler.ListErrands)
				r.Delete("/admin/users/{user_id}", adminHandler.DeleteUser)
				r.Delete("/admin/errands/{errand_id}", adminHandler.DeleteErrand)
			})
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	// Notification janitor: sweeps notices past the retention window.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Polling.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				swept, err := notificationService.Cleanup(ctx, cfg.Polling.NotificationTTL)
				if err != nil {
					log.Error().Err(err).Msg("Notification cleanup failed")
					continue
				}
				if swept > 0 {
					log.Info().Int64("swept", swept).Msg("Old notifications removed")
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}

	log.Info().Msg("Server exited")
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
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
