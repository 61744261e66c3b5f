package server

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"time"
)

const RequestIDKey = "requestid"

type Options struct {
	// RateLimit is the number of requests per client per minute, 0 disables the limiter.
	RateLimit int
}

func NewFiber(l *zap.Logger, opts Options) *fiber.App {
	// Immutable: identities and titles outlive the request and end up in the store
	app := fiber.New(fiber.Config{
		Immutable:             true,
		ProxyHeader:           "X-Real-Ip",
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          errorHandler(l),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())

	app.Use(requestid.New(requestid.Config{
		Generator:  uuid.NewString,
		ContextKey: RequestIDKey,
	}))

	app.Use(logging(l))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowCredentials: false,
		AllowMethods:     "GET, POST, OPTIONS",
		AllowHeaders:     "content-type, origin, x-request-id, x-voter-identity",
		MaxAge:           864000,
	}))

	if opts.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimit,
			Expiration: time.Minute,
		}))
	}

	return app
}

func logging(l *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// let the error handler set the status before it is logged
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		fields := []zap.Field{
			zap.String("request_id", requestID(c)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
		}
		if c.Response().StatusCode() >= fiber.StatusInternalServerError {
			l.Error("request failed", append(fields, zap.Error(err))...)
		} else {
			l.Info("request", fields...)
		}
		return nil
	}
}

func errorHandler(l *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "something went wrong"
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		} else {
			l.Error("unhandled error", zap.String("request_id", requestID(c)), zap.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{
			"error":   utils.StatusMessage(code),
			"message": message,
		})
	}
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(RequestIDKey).(string)
	return id
}
