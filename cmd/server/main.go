package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rekwane/RJFinancial-sub000/internal/config"
	"github.com/Rekwane/RJFinancial-sub000/internal/database"
	"github.com/Rekwane/RJFinancial-sub000/internal/handlers"
	"github.com/Rekwane/RJFinancial-sub000/internal/middleware"
	"github.com/Rekwane/RJFinancial-sub000/internal/services"
	"github.com/Rekwane/RJFinancial-sub000/internal/storage"
	"github.com/Rekwane/RJFinancial-sub000/pkg/logger"
	"github.com/Rekwane/RJFinancial-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationMinutes)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}

	var auditStorage *storage.MinIOClient
	if cfg.MinIO.Configured() {
		auditStorage, err = storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("minio initialization failed: %v", err)
		}
		if err := auditStorage.EnsureBucket(context.Background()); err != nil {
			log.Fatalf("failed ensuring minio bucket: %v", err)
		}
	} else {
		logger.Warn("audit_archive_disabled", map[string]interface{}{
			"reason": "missing MinIO credentials",
		})
	}

	auditService := services.NewAuditService(db, auditStorage)
	auditService.StartExporter(cfg.Audit.ExportInterval)

	sessionService := services.NewSessionService(redisClient, cfg.Session.TTL)
	verificationService := services.NewVerificationService(db)
	dispatcher := services.NewDispatcher(cfg.Email, cfg.SMS)

	authHandler := handlers.NewAuthHandler(db, auditService, sessionService, verificationService, dispatcher)
	authHandler.SecureCookies = cfg.Server.IsProduction()
	usersHandler := handlers.NewUsersHandler(db)
	auditHandler := handlers.NewAuditHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db, sessionService)

	app := fiber.New(fiber.Config{BodyLimit: 1 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New())
	app.Use(middleware.CORS(cfg.Server.FrontendURL))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/verify-mfa", authHandler.VerifyMFA)
	authRoutes.Post("/logout", authMiddleware.OptionalAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/me", authMiddleware.RequireAuth, authHandler.UpdateMe)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)
	authRoutes.Post("/request-email-verification", authMiddleware.RequireAuth, authHandler.RequestEmailVerification)
	authRoutes.Post("/request-sms-verification", authMiddleware.RequireAuth, authHandler.RequestSMSVerification)
	authRoutes.Post("/verify-email", authMiddleware.RequireAuth, authHandler.VerifyEmail)
	authRoutes.Post("/verify-sms", authMiddleware.RequireAuth, authHandler.VerifySMS)

	api.Get("/account/membership", authMiddleware.RequireAuth, handlers.Membership)

	api.Get("/users/search", authMiddleware.RequireAuth, usersHandler.Search)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, middleware.AdminOnly())
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Put("/:id", usersHandler.Update)
	userRoutes.Delete("/:id", usersHandler.Delete)

	auditRoutes := api.Group("/audit-log", authMiddleware.RequireAuth)
	auditRoutes.Get("/export", auditHandler.ExportMyLog)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
		"env":     cfg.Server.Env,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
