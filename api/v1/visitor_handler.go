package v1

import (
	"log/slog"

	"github.com/karloscodes/cartridge"
)

// IdentityAction handles GET /analytics/identity. It issues any missing
// identity cookies and echoes the resulting ids, for instrumentation that
// prefers server-issued identifiers.
func (h *Handler) IdentityAction(ctx *cartridge.Context) error {
	id := h.visitors.Resolve(ctx.Ctx)

	ctx.Logger.Debug("Resolved visitor identity",
		slog.String("visitor_id", id.VisitorID),
		slog.Bool("is_new_visitor", id.IsNewVisitor))

	ctx.Set("Cache-Control", "no-store")
	return ctx.JSON(id)
}
