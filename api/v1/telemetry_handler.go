package v1

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"portfolio/internal/events"
)

type errorParams struct {
	SessionID    string `json:"sessionId"`
	ErrorMessage string `json:"errorMessage"`
	ErrorStack   string `json:"errorStack"`
	PagePath     string `json:"pagePath"`
	Browser      string `json:"browser"`
	OS           string `json:"os"`
}

type performanceParams struct {
	SessionID string `json:"sessionId"`
	PagePath  string `json:"pagePath"`
	Metrics   struct {
		FCP      *float64 `json:"fcp"`
		LCP      *float64 `json:"lcp"`
		FID      *float64 `json:"fid"`
		CLS      *float64 `json:"cls"`
		TTFB     *float64 `json:"ttfb"`
		LoadTime *float64 `json:"loadTime"`
	} `json:"metrics"`
}

// ErrorAction handles POST /analytics/error.
func (h *Handler) ErrorAction(ctx *cartridge.Context) error {
	var params errorParams
	if err := json.Unmarshal(ctx.Body(), &params); err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}

	record := events.ErrorRecord{
		SessionID:    params.SessionID,
		ErrorMessage: params.ErrorMessage,
		ErrorStack:   params.ErrorStack,
		PagePath:     params.PagePath,
		Browser:      params.Browser,
		OS:           params.OS,
	}
	if err := h.ingestor.RecordError(ctx.UserContext(), record); err != nil {
		if !events.IsValidationError(err) {
			ctx.Logger.Error("Failed to record client error", slog.Any("error", err))
		}
		return handleError(ctx.Ctx, trackError(err, errTrackErrorFailed))
	}
	return ctx.JSON(fiber.Map{"success": true})
}

// PerformanceAction handles POST /analytics/performance.
func (h *Handler) PerformanceAction(ctx *cartridge.Context) error {
	var params performanceParams
	if err := json.Unmarshal(ctx.Body(), &params); err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}

	metric := events.PerformanceMetric{
		SessionID: params.SessionID,
		PagePath:  params.PagePath,
		FCP:       params.Metrics.FCP,
		LCP:       params.Metrics.LCP,
		FID:       params.Metrics.FID,
		CLS:       params.Metrics.CLS,
		TTFB:      params.Metrics.TTFB,
		LoadTime:  params.Metrics.LoadTime,
	}
	if err := h.ingestor.RecordPerformance(ctx.UserContext(), metric); err != nil {
		if !events.IsValidationError(err) {
			ctx.Logger.Error("Failed to record performance metric", slog.Any("error", err))
		}
		return handleError(ctx.Ctx, trackError(err, errTrackPerfFailed))
	}
	return ctx.JSON(fiber.Map{"success": true})
}
