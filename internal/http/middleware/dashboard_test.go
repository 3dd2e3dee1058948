package middleware

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAuth bool

func (a staticAuth) IsAuthenticated(*fiber.Ctx) bool { return bool(a) }

func TestDashboardAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name          string
		authenticated bool
		required      bool
		wantStatus    int
	}{
		{"authenticated", true, true, fiber.StatusOK},
		{"anonymous rejected", false, true, fiber.StatusUnauthorized},
		{"anonymous allowed when auth is off", false, false, fiber.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/analytics/stats", DashboardAuth(staticAuth(tc.authenticated), tc.required, logger), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/analytics/stats", nil))
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)

			if tc.wantStatus == fiber.StatusUnauthorized {
				body, _ := io.ReadAll(resp.Body)
				assert.JSONEq(t, `{"success":false,"error":"Authentication required"}`, string(body))
			}
		})
	}
}
