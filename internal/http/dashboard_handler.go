package http

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/crypto"
	"golang.org/x/crypto/bcrypt"

	"portfolio/internal/analytics"
	"portfolio/internal/timeframe"
)

// dashboardUserID is stored in the session; there is one shared dashboard login.
const dashboardUserID uint = 1

// Dashboard serves the password gate and the report endpoints.
type Dashboard struct {
	engine       *analytics.Engine
	passwordHash string
}

// NewDashboard hashes password with bcrypt unless it already is a bcrypt
// hash, as printed by `portfolioctl hash-password`.
func NewDashboard(engine *analytics.Engine, password string) (*Dashboard, error) {
	hash, err := HashDashboardPassword(password)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		engine:       engine,
		passwordHash: hash,
	}, nil
}

// HashDashboardPassword returns password as a bcrypt hash. Values that are
// already bcrypt hashes are returned unchanged.
func HashDashboardPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("dashboard password is empty")
	}
	if _, err := bcrypt.Cost([]byte(password)); err == nil {
		return password, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash dashboard password: %w", err)
	}
	return string(hash), nil
}

// AuthAction handles POST /dashboard/auth.
func (d *Dashboard) AuthAction(ctx *cartridge.Context) error {
	var body struct {
		Password string `json:"password"`
	}
	if err := ctx.BodyParser(&body); err != nil || strings.TrimSpace(body.Password) == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Password is required",
		})
	}

	if !crypto.VerifyPassword(d.passwordHash, body.Password) {
		ctx.Logger.Warn("Invalid dashboard password attempt", slog.String("ip", ctx.IP()))
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid password",
		})
	}

	if err := ctx.Session.SetSession(ctx.Ctx, dashboardUserID); err != nil {
		ctx.Logger.Error("Failed to set dashboard session", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Login failed",
		})
	}

	ctx.Logger.Info("Dashboard login successful")
	return ctx.JSON(fiber.Map{"success": true})
}

// LogoutAction handles POST /dashboard/logout.
func (d *Dashboard) LogoutAction(ctx *cartridge.Context) error {
	ctx.Session.ClearSession(ctx.Ctx)
	return ctx.JSON(fiber.Map{"success": true})
}

// SessionAction handles GET /dashboard/session.
func (d *Dashboard) SessionAction(ctx *cartridge.Context) error {
	return ctx.JSON(fiber.Map{"authenticated": ctx.Session.IsAuthenticated(ctx.Ctx)})
}

// StatsAction handles GET /analytics/stats. Sections that failed are listed
// in the report's errors; only a report with nothing in it is a 500.
func (d *Dashboard) StatsAction(ctx *cartridge.Context) error {
	label := timeframe.ParseRange(ctx.Query("timeRange"))

	report, err := d.engine.ComputeStats(ctx.UserContext(), label)
	if err != nil {
		ctx.Logger.Error("Failed to compute stats",
			slog.String("time_range", string(label)),
			slog.Any("error", err))
		return handleError(ctx.Ctx, "Failed to fetch analytics", err)
	}
	return ctx.JSON(report)
}

// RealtimeAction handles GET /analytics/realtime.
func (d *Dashboard) RealtimeAction(ctx *cartridge.Context) error {
	report, err := d.engine.ComputeRealtime(ctx.UserContext())
	if err != nil {
		ctx.Logger.Error("Failed to compute realtime snapshot", slog.Any("error", err))
		return handleError(ctx.Ctx, "Failed to fetch realtime data", err)
	}
	return ctx.JSON(report)
}

// ContactsAction handles GET /analytics/contacts.
func (d *Dashboard) ContactsAction(ctx *cartridge.Context) error {
	label := timeframe.ParseRange(ctx.Query("timeRange"))

	report, err := d.engine.ComputeContacts(ctx.UserContext(), label)
	if err != nil {
		ctx.Logger.Error("Failed to list contacts", slog.Any("error", err))
		return handleError(ctx.Ctx, "Failed to fetch contacts", err)
	}
	return ctx.JSON(report)
}

func handleError(c *fiber.Ctx, message string, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiberErr.Message,
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   message,
		"details": err.Error(),
	})
}
