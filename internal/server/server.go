package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/calmly-app/calmly/internal/config"
	"github.com/calmly-app/calmly/internal/inference"
	"github.com/calmly-app/calmly/internal/logging"
	"github.com/calmly-app/calmly/internal/notification"
	"github.com/calmly-app/calmly/internal/routes"
	"github.com/calmly-app/calmly/internal/translation"
	"github.com/calmly-app/calmly/internal/warmup"
)

// Backends are the optional store connections opened by main.
type Backends struct {
	DB    *pgxpool.Pool
	Mongo *mongo.Database
	Cache *redis.Client
}

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	warmup *warmup.Task
	logger *slog.Logger
}

// New builds the outbound clients and delegates route wiring to routes.Setup.
func New(cfg config.Config, b Backends, logger *slog.Logger) (*Server, error) {
	logger = logging.OrDiscard(logger)

	// The model call alone may take a minute.
	writeTimeout := cfg.LLM.Timeout + cfg.Translator.Timeout*2 + 5*time.Second
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
	})

	persona := inference.DefaultPersona()
	if cfg.LLM.SystemPrompt != "" {
		persona.SystemPrompt = cfg.LLM.SystemPrompt
	}
	persona.Temperature = cfg.LLM.Temperature
	persona.TopP = cfg.LLM.TopP

	llm := inference.NewClient(inference.Config{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
		Persona:  persona,
	}, logger)
	translator := translation.NewLibreTranslateClient(translation.LibreTranslateConfig{
		BaseURL: cfg.Translator.URL,
		APIKey:  cfg.Translator.APIKey,
		Timeout: cfg.Translator.Timeout,
	}, logger)

	deps := routes.Deps{
		Cfg:        cfg,
		DB:         b.DB,
		Mongo:      b.Mongo,
		Cache:      b.Cache,
		Logger:     logger,
		LLM:        llm,
		Translator: translator,
		Notifier:   newNotifier(cfg, logger),
	}
	if err := routes.Setup(app, deps); err != nil {
		return nil, err
	}

	return &Server{
		app:    app,
		cfg:    cfg,
		warmup: warmup.New(llm, cfg.LLM.WarmupTimeout, logger),
		logger: logger,
	}, nil
}

func newNotifier(cfg config.Config, logger *slog.Logger) notification.Notifier {
	if cfg.SMTP.Host == "" {
		logger.Warn("smtp not configured, otp codes are written to the log")
		return notification.NewLoggerNotifier(logger)
	}
	return notification.NewSMTPNotifier(notification.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}

// App returns the underlying Fiber application.
func (s *Server) App() *fiber.App { return s.app }

// Warmup returns the model warmup task.
func (s *Server) Warmup() *warmup.Task { return s.warmup }

// Listen starts the model warmup in the background, then serves HTTP.
func (s *Server) Listen(ctx context.Context) error {
	if s.cfg.LLM.Warmup {
		s.warmup.Start(ctx)
	}
	s.logger.Info("listening", slog.String("addr", s.cfg.Address()))
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
