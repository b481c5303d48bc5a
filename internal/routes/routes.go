package routes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/calmly-app/calmly/internal/config"
	"github.com/calmly-app/calmly/internal/conversation"
	"github.com/calmly-app/calmly/internal/identity"
	"github.com/calmly-app/calmly/internal/logging"
	"github.com/calmly-app/calmly/internal/middleware"
	"github.com/calmly-app/calmly/internal/notification"
	"github.com/calmly-app/calmly/internal/otp"
	"github.com/calmly-app/calmly/internal/translation"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg        config.Config
	DB         *pgxpool.Pool
	Mongo      *mongo.Database
	Cache      *redis.Client
	Logger     *slog.Logger
	LLM        conversation.Completer
	Translator translation.Translator
	Notifier   notification.Notifier
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	d.Logger = logging.OrDiscard(d.Logger)
	if d.LLM == nil || d.Translator == nil {
		return fmt.Errorf("routes: llm and translator are required")
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	users, err := userRepository(d)
	if err != nil {
		return err
	}
	codes, err := otpStore(d)
	if err != nil {
		return err
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	app.Use(cors.New(cors.Config{AllowOrigins: d.Cfg.AllowOrigins}))

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app)

	orchestrator := conversation.NewOrchestrator(d.Translator, d.LLM,
		conversation.Options{FallbackToEnglish: d.Cfg.Chat.FallbackToEnglish}, d.Logger)
	identitySvc := identity.NewService(users)
	otpSvc := otp.NewService(codes, identitySvc, d.Notifier, d.Cfg.OTPTTL, d.Logger)

	// Replay is limited to chat: account and OTP answers depend on store
	// state and credentials, so a cached answer must never stand in for them.
	// Chat conflicts are served uncached to keep its always-200 contract.
	var chatMiddleware []fiber.Handler
	if d.Cache != nil {
		chatMiddleware = append(chatMiddleware, middleware.Idempotency(middleware.IdempotencyConfig{
			Cache:   d.Cache,
			TTL:     d.Cfg.IdempotencyTTL,
			Logger:  d.Logger,
			Lenient: true,
		}))
	}

	RegisterChatRoutes(app, conversation.NewHandler(orchestrator), chatMiddleware...)
	RegisterIdentityRoutes(app, identity.NewHandler(identitySvc, d.Logger))
	RegisterOTPRoutes(app, otp.NewHandler(otpSvc, d.Logger))

	return nil
}

// userRepository picks the account store. Outside development a configured
// backend without a live connection is an error; in development the memory
// store stands in.
func userRepository(d Deps) (identity.Repository, error) {
	switch d.Cfg.UserStore {
	case config.StorePostgres:
		if d.DB != nil {
			return identity.NewPostgresRepository(d.DB), nil
		}
	case config.StoreMongo:
		if d.Mongo != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return identity.NewMongoRepository(ctx, d.Mongo)
		}
	case config.StoreMemory, "":
		return identity.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown user store %q", d.Cfg.UserStore)
	}

	if !d.Cfg.IsDev() {
		return nil, fmt.Errorf("user store %s is not connected (APP_ENV=%s)", d.Cfg.UserStore, d.Cfg.AppEnv)
	}
	d.Logger.Warn("user store not connected, using memory", slog.String("store", d.Cfg.UserStore))
	return identity.NewMemoryRepository(), nil
}

func otpStore(d Deps) (otp.Store, error) {
	switch d.Cfg.OTPStore {
	case config.StoreRedis:
		if d.Cache != nil {
			return otp.NewRedisStore(d.Cache, ""), nil
		}
	case config.StoreMemory, "":
		return otp.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown otp store %q", d.Cfg.OTPStore)
	}

	if !d.Cfg.IsDev() {
		return nil, fmt.Errorf("otp store %s is not connected (APP_ENV=%s)", d.Cfg.OTPStore, d.Cfg.AppEnv)
	}
	d.Logger.Warn("otp store not connected, using memory", slog.String("store", d.Cfg.OTPStore))
	return otp.NewMemoryStore(), nil
}
