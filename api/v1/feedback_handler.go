package v1

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"portfolio/internal/feedback"
)

// FeedbackSubmitAction handles POST /feedback/submit.
func (h *Handler) FeedbackSubmitAction(ctx *cartridge.Context) error {
	var in feedback.Input
	if err := json.Unmarshal(ctx.Body(), &in); err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}

	entry, err := h.feedback.Submit(ctx.UserContext(), in)
	if err != nil {
		if !feedback.IsValidationError(err) {
			ctx.Logger.Error("Failed to save feedback", slog.Any("error", err))
		}
		return handleError(ctx.Ctx, trackError(err, errFeedbackSaveFailed))
	}

	return ctx.JSON(fiber.Map{
		"success":  true,
		"feedback": entry,
	})
}

// FeedbackListAction handles GET /feedback for the public feedback widget.
func (h *Handler) FeedbackListAction(ctx *cartridge.Context) error {
	entries, err := h.feedback.List(ctx.UserContext())
	if err != nil {
		ctx.Logger.Error("Failed to list feedback", slog.Any("error", err))
		return handleError(ctx.Ctx, trackError(err, errFeedbackListFailed))
	}

	return ctx.JSON(fiber.Map{
		"success":   true,
		"feedbacks": entries,
	})
}
