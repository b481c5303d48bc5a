package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/calmly-app/calmly/internal/logging"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v1:"
	inProgressPrefix     = "__in_progress__:"
)

// IdempotencyConfig configures the Idempotency middleware.
type IdempotencyConfig struct {
	Cache  *redis.Client
	TTL    time.Duration
	Logger *slog.Logger
	// Lenient serves conflicting requests (same key reused with another body,
	// or a duplicate still in flight) uncached instead of rejecting them.
	Lenient bool
}

type storedResponse struct {
	BodyHash string            `json:"body_hash"`
	Status   int               `json:"status"`
	Body     string            `json:"body"`
	Headers  map[string]string `json:"headers"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// unsafe HTTP methods. A replay happens only when the request body hashes to
// the same value as the original. Requests without the header pass through.
func Idempotency(cfg IdempotencyConfig) fiber.Handler {
	logger := logging.OrDiscard(cfg.Logger)
	cache := cfg.Cache

	conflict := func(c *fiber.Ctx, status int, msg string) error {
		if cfg.Lenient {
			return c.Next()
		}
		return fiber.NewError(status, msg)
	}

	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return c.Next()
		}

		sum := sha256.Sum256(c.Body())
		bodyHash := hex.EncodeToString(sum[:])
		cacheKey := idempotencyPrefix + c.Path() + ":" + key
		logger := logging.FromContext(c.UserContext(), logger).With(slog.String("idempotency_key", key))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			if held, ok := strings.CutPrefix(cached, inProgressPrefix); ok {
				if held != bodyHash {
					return conflict(c, fiber.StatusUnprocessableEntity, "Idempotency-Key reused with a different request")
				}
				return conflict(c, fiber.StatusConflict, "duplicate request currently processing")
			}

			var stored storedResponse
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				logger.Warn("failed to decode stored idempotent response", slog.Any("error", err))
				return conflict(c, fiber.StatusConflict, "duplicate request")
			}
			if stored.BodyHash != bodyHash {
				return conflict(c, fiber.StatusUnprocessableEntity, "Idempotency-Key reused with a different request")
			}

			for header, value := range stored.Headers {
				if strings.EqualFold(header, fiber.HeaderContentLength) {
					continue
				}
				c.Set(header, value)
			}
			return c.Status(stored.Status).SendString(stored.Body)
		case !errors.Is(err, redis.Nil):
			logger.Warn("idempotency lookup failed, serving uncached", slog.Any("error", err))
			return c.Next()
		}

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressPrefix+bodyHash, cfg.TTL).Result()
		if err != nil {
			logger.Warn("idempotency reservation failed, serving uncached", slog.Any("error", err))
			return c.Next()
		}
		if !reserved {
			return conflict(c, fiber.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			cache.Del(cleanupCtx, cacheKey) // best effort cleanup
			return err
		}

		stored := storedResponse{
			BodyHash: bodyHash,
			Status:   c.Response().StatusCode(),
			Body:     string(c.Response().Body()),
			Headers:  map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})

		persistCtx, persistCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer persistCancel()

		payload, err := json.Marshal(stored)
		if err != nil {
			logger.Error("failed to encode idempotent response", slog.Any("error", err))
			cache.Del(persistCtx, cacheKey)
			return nil
		}
		// The handler already produced a response; a failed write only loses replay.
		if err := cache.Set(persistCtx, cacheKey, payload, cfg.TTL).Err(); err != nil {
			logger.Error("failed to persist idempotent response", slog.Any("error", err))
			cache.Del(persistCtx, cacheKey)
		}
		return nil
	}
}
