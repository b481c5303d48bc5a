package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const statusOK = "ok"

type healthChecker interface {
	CheckHealth(ctx context.Context) error
}

// RegisterHealthRoutes adds liveness/readiness style endpoints. Only the
// stores are fatal; an unreachable translator is reported but the chat
// endpoint still answers with its fallback.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := fiber.Map{}
		healthy := true
		if d.DB != nil {
			status["postgres"] = checkStatus(d.DB.Ping(ctx), &healthy)
		}
		if d.Cache != nil {
			status["redis"] = checkStatus(d.Cache.Ping(ctx).Err(), &healthy)
		}
		if d.Mongo != nil {
			status["mongo"] = checkStatus(d.Mongo.Client().Ping(ctx, nil), &healthy)
		}
		if hc, ok := d.Translator.(healthChecker); ok {
			translator := statusOK
			if err := hc.CheckHealth(ctx); err != nil {
				translator = err.Error()
			}
			status["translator"] = translator
		}

		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

// RegisterMetricsRoute exposes the prometheus registry.
func RegisterMetricsRoute(app *fiber.App) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func checkStatus(err error, healthy *bool) string {
	if err != nil {
		*healthy = false
		return err.Error()
	}
	return statusOK
}
