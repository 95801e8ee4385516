package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/voiceflow/api/internal/auth"
	"github.com/voiceflow/api/internal/capture"
	"github.com/voiceflow/api/internal/client"
	"github.com/voiceflow/api/internal/config"
	"github.com/voiceflow/api/internal/handler"
	"github.com/voiceflow/api/internal/middleware"
	"github.com/voiceflow/api/internal/repository"
	"github.com/voiceflow/api/internal/service"
	"github.com/voiceflow/api/internal/session"
	"github.com/voiceflow/api/internal/tasklist"
	"github.com/voiceflow/api/internal/worker"
	ws "github.com/voiceflow/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize object storage (optional - pipeline fails per note until configured)
	var storageClient client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: storage client not initialized: %v", err)
		} else {
			storageClient = s3Client
		}
	} else {
		log.Println("Info: object storage not configured")
	}

	// The interpretation endpoint defaults to this process's own function
	// route when no remote deployment is configured.
	if cfg.Interpreter.URL == "" {
		cfg.Interpreter.URL = "http://localhost:" + cfg.Server.Port + "/functions/interpret"
	}
	if cfg.Interpreter.FunctionKey == "" {
		cfg.Interpreter.FunctionKey = cfg.Function.Key
	}
	interpreterClient := client.NewInterpreterClient(&cfg.Interpreter)
	calendarClient := client.NewCalendarClient(&cfg.Calendar)
	genaiClient := client.NewGenAIClient(&cfg.GenAI)

	// Initialize Postgres task repository (optional - tasks stay in memory)
	var taskRepo repository.TaskRepository
	if cfg.Database.DSN != "" {
		pgRepo, err := repository.NewPostgresTaskRepository(cfg.Database.DSN)
		if err != nil {
			log.Printf("Warning: task repository not initialized: %v", err)
		} else {
			defer pgRepo.Close()
			taskRepo = pgRepo
		}
	} else {
		log.Println("Info: database not configured, tasks are not persisted")
	}

	// Initialize JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Identity.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Identity)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Task list state and session manager
	taskStore := tasklist.NewStore()
	sessions := session.NewManager(&cfg.OAuth)
	if !sessions.IsConfigured() {
		log.Println("Info: OAuth not configured, calendar sync requires X-Provider-Token")
	}

	// Initialize services
	noteService := service.NewNoteService(taskStore, asynqClient, taskRepo)
	interpretService := service.NewInterpretService(genaiClient)

	// Clear a user's in-memory tasks when their session ends
	sessionEvents, cancelSessionWatch := sessions.Subscribe()
	defer cancelSessionWatch()
	go noteService.WatchSessions(sessionEvents)

	// Initialize handlers
	notesHandler := handler.NewNotesHandler(noteService, sessions)
	interpretHandler := handler.NewInterpretHandler(interpretService, validate)
	captureDevice := capture.NewFFmpegDevice(cfg.Capture.Command, cfg.Capture.InputFormat, cfg.Capture.InputDevice)
	captureHandler := handler.NewCaptureHandler(noteService, sessions, captureDevice)

	// Initialize auth handler for ForwardAuth verification and OAuth flow
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret, sessions)

	// Initialize middleware (with fallback support)
	var authMiddleware *middleware.AuthMiddleware
	if jwksVerifier != nil && cfg.JWT.Secret != "" {
		authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
	} else if jwksVerifier != nil {
		authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
	} else {
		authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
	}
	apiAuthMiddleware := authMiddleware.Authenticate()
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    30 * 1024 * 1024, // 30MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Provider-Token,X-Function-Key",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"storage":  storageClient != nil,
				"genai":    genaiClient.IsConfigured(),
				"database": taskRepo != nil,
				"oauth":    sessions.IsConfigured(),
				"auth":     jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by the gateway)
	app.Get("/auth/verify", authHandler.Verify)

	// Calendar consent flow
	app.Get("/auth/login", apiAuthMiddleware, authHandler.Login)
	app.Get("/auth/callback", authHandler.Callback)
	app.Post("/auth/logout", apiAuthMiddleware, authHandler.Logout)

	// Interpretation function endpoint (guarded by shared key, not user auth)
	app.Post("/functions/interpret",
		middleware.FunctionAuthMiddleware(cfg.Function.Key),
		rateLimiter.InterpretLimit(cfg.RateLimit.InterpretPerMin),
		interpretHandler.Interpret,
	)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Notes routes
	api.Post("/notes", rateLimiter.NotesLimit(cfg.RateLimit.NotesPerHour), notesHandler.Create)
	api.Get("/notes", notesHandler.List)

	// Capture routes
	api.Get("/capture", captureHandler.Status)
	api.Post("/capture/start", captureHandler.Start)
	api.Post("/capture/stop", captureHandler.Stop)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/tasks", websocket.New(func(c *websocket.Conn) {
		token := c.Query("token")
		userID, err := authMiddleware.ValidateToken(token)
		if err != nil {
			c.WriteMessage(websocket.CloseMessage, []byte{})
			c.Close()
			return
		}
		hub.HandleConnection(c, userID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, taskStore, storageClient, interpreterClient, calendarClient, taskRepo, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	taskStore *tasklist.Store,
	storageClient client.StorageClient,
	interpreterClient *client.InterpreterClient,
	calendarClient *client.CalendarClient,
	taskRepo repository.TaskRepository,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"notes": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	noteWorker := worker.NewNoteWorker(taskStore, storageClient, interpreterClient, calendarClient, taskRepo, hub)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeNote, noteWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
