package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/campus-market/campus_market/internal/auth"
	"github.com/campus-market/campus_market/internal/catalog"
	"github.com/campus-market/campus_market/internal/config"
	"github.com/campus-market/campus_market/internal/identity"
	"github.com/campus-market/campus_market/internal/ledger"
	"github.com/campus-market/campus_market/internal/messaging"
	"github.com/campus-market/campus_market/internal/middleware"
	"github.com/campus-market/campus_market/internal/notification"
	"github.com/campus-market/campus_market/internal/seed"
	"github.com/campus-market/campus_market/internal/session"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Catalog overrides the listing store when DB is nil (the SQLite backend).
	Catalog catalog.Repository
	// Notifier receives domain notifications in addition to the log.
	Notifier notification.Notifier
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var (
		identityRepo identity.Repository
		catalogRepo  catalog.Repository
		ledgerStore  ledger.Store
		threadStore  messaging.Store
	)
	switch {
	case d.DB != nil:
		identityRepo = identity.NewPostgresRepository(d.DB)
		catalogRepo = catalog.NewPostgresRepository(d.DB)
		ledgerStore = ledger.NewPostgresStore(d.DB)
		threadStore = messaging.NewPostgresStore(d.DB)
	default:
		identityRepo = identity.NewMemoryRepository()
		catalogRepo = catalog.NewMemoryRepository()
		if d.Catalog != nil {
			catalogRepo = d.Catalog
		}
		ledgerStore = ledger.NewInMemory()
		threadStore = messaging.NewMemoryStore()
	}

	notifier := notification.Fanout{notification.NewLoggerNotifier(d.Logger), d.Notifier}
	identitySvc := identity.NewService(identityRepo, d.Cfg.VerificationCode)
	catalogSvc := catalog.NewService(catalogRepo)
	ledgerSvc := ledger.NewService(ledgerStore, catalogSvc, identitySvc, d.Cfg.FeeRate, ledger.StaticDisburser{}, notifier, d.Logger)
	messagingSvc := messaging.NewService(threadStore, notifier, d.Logger)
	sessionSvc := session.NewService(identitySvc, catalogSvc, ledgerSvc, messagingSvc, notifier, d.Logger)
	authSvc := auth.NewService(d.Cfg.JWTSecret, d.Cfg.AccessTokenTTL, identitySvc)
	handler := session.NewHandler(sessionSvc, authSvc, d.Logger)

	if d.Cfg.SeedDemo {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := seed.Demo(ctx, identitySvc, catalogSvc, d.Logger); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDHeader).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	requireSession := middleware.SessionAuth(authSvc)
	idempotent := func(c *fiber.Ctx) error { return c.Next() }
	if d.Cache != nil {
		idempotent = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	RegisterAuthRoutes(api, handler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttempts), requireSession)
	RegisterListingRoutes(api, handler, requireSession, idempotent)
	RegisterMeRoutes(api, handler, requireSession, idempotent)
	RegisterThreadRoutes(api, handler, requireSession)

	return nil
}
