package http

import (
	"context"
	"errors"
	"log/slog"
	nethttp "net/http"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/karloscodes/cartridge"
)

const healthPingTimeout = 2 * time.Second

var errDatabaseUnavailable = errors.New("database connection unavailable")

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
}

// HealthIndexAction reports whether the database answers a ping. A failed
// ping degrades the status but the endpoint itself still answers 200.
func HealthIndexAction(ctx *cartridge.Context) error {
	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		DBStatus:  "ok",
	}

	if err := pingDatabase(ctx); err != nil {
		ctx.Logger.Error("Database health check failed", slog.Any("error", err))
		health.Status = "degraded"
		health.DBStatus = "error"
	}

	return ctx.JSON(health)
}

func pingDatabase(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()
	if db == nil {
		return errDatabaseUnavailable
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx.UserContext(), healthPingTimeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// MetricsAction exposes a Prometheus handler as a cartridge route.
func MetricsAction(handler nethttp.Handler) func(*cartridge.Context) error {
	serve := adaptor.HTTPHandler(handler)
	return func(ctx *cartridge.Context) error {
		return serve(ctx.Ctx)
	}
}
