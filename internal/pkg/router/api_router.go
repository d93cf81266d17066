package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	apiv1 "github.com/loadway/Loadway/internal/api/v1"
	"github.com/loadway/Loadway/internal/pkg/cache"
	"github.com/loadway/Loadway/internal/pkg/checkout"
	"github.com/loadway/Loadway/internal/pkg/constants"
	"github.com/loadway/Loadway/internal/pkg/database"
	"github.com/loadway/Loadway/internal/pkg/env"
	"github.com/loadway/Loadway/internal/pkg/middleware"
	"github.com/loadway/Loadway/internal/pkg/upstream"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    limiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	upstreamClient := upstream.NewClientFromEnv()
	engine := checkout.NewEngineFromEnv(database.GetDB())
	apiServer := apiv1.NewAPIServer(engine)

	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, apiServer, middleware.BearerAuthMiddleware(upstreamClient))
}

// limiterStorage backs the rate limiter with Redis so counters survive
// restarts and are shared across instances. Database 1 keeps limiter keys
// out of the cache keyspace.
func limiterStorage() fiber.Storage {
	client := cache.GetClient()
	if client == nil {
		return nil
	}

	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	password := client.Options().Password
	if password == "" {
		password = env.GetEnv("CACHE_PASSWORD", "")
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
