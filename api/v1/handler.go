package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"portfolio/internal/events"
	"portfolio/internal/feedback"
	"portfolio/internal/visitors"
)

const (
	errInvalidRequest      = "Invalid request body"
	errInternal            = "Internal server error"
	errTrackFailed         = "Failed to track analytics"
	errTrackErrorFailed    = "Failed to track error"
	errTrackPerfFailed     = "Failed to track performance"
	errFeedbackSaveFailed  = "Failed to save feedback"
	errFeedbackListFailed  = "Failed to fetch feedback"
	defaultEdgeCountryName = "X-Vercel-IP-Country"
	defaultEdgeCityName    = "X-Vercel-IP-City"
)

// Options wires the public API to its services.
type Options struct {
	Ingestor          *events.Ingestor
	Visitors          *visitors.Resolver
	Feedback          *feedback.Service
	EdgeCountryHeader string
	EdgeCityHeader    string
}

// Handler serves the public ingestion endpoints. Its services are built
// once at startup and shared by every request.
type Handler struct {
	ingestor      *events.Ingestor
	visitors      *visitors.Resolver
	feedback      *feedback.Service
	countryHeader string
	cityHeader    string
}

func NewHandler(opts Options) *Handler {
	h := &Handler{
		ingestor:      opts.Ingestor,
		visitors:      opts.Visitors,
		feedback:      opts.Feedback,
		countryHeader: opts.EdgeCountryHeader,
		cityHeader:    opts.EdgeCityHeader,
	}
	if h.countryHeader == "" {
		h.countryHeader = defaultEdgeCountryName
	}
	if h.cityHeader == "" {
		h.cityHeader = defaultEdgeCityName
	}
	return h
}

// TrackAction handles POST /analytics/track. The body is parsed as JSON
// regardless of content type, since navigator.sendBeacon posts text/plain.
func (h *Handler) TrackAction(ctx *cartridge.Context) error {
	var env events.Envelope
	if err := json.Unmarshal(ctx.Body(), &env); err != nil {
		ctx.Logger.Debug("Failed to parse track request", slog.Any("error", err))
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}

	if env.SessionID == "" || env.VisitorID == "" {
		cookies := visitors.Peek(ctx.Ctx)
		if env.SessionID == "" {
			env.SessionID = cookies.SessionID
		}
		if env.VisitorID == "" {
			env.VisitorID = cookies.VisitorID
		}
	}

	if err := h.ingestor.Ingest(ctx.UserContext(), env, h.requestInfo(ctx.Ctx)); err != nil {
		return handleError(ctx.Ctx, trackError(err, errTrackFailed))
	}

	if env.Type == events.KindSessionEnd {
		h.visitors.EndSession(ctx.Ctx)
	}

	ctx.Logger.Debug("Tracked analytics event",
		slog.String("type", string(env.Type)),
		slog.String("session_id", env.SessionID))
	return ctx.JSON(fiber.Map{"success": true})
}

func (h *Handler) requestInfo(c *fiber.Ctx) events.RequestInfo {
	userAgent := c.Get("User-Agent")
	if forwardedUA := c.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgent = forwardedUA
	}
	return events.RequestInfo{
		IP:          getClientIP(c),
		UserAgent:   userAgent,
		EdgeCountry: c.Get(h.countryHeader),
		EdgeCity:    c.Get(h.cityHeader),
	}
}

// storeError carries the underlying failure to the response details.
type storeError struct {
	message string
	err     error
}

func (e *storeError) Error() string { return e.message + ": " + e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

// trackError maps service errors onto the response shapes below.
func trackError(err error, message string) error {
	if events.IsValidationError(err) || feedback.IsValidationError(err) {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return &storeError{message: message, err: err}
}

func handleError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiberErr.Message,
		})
	}

	var stored *storeError
	if errors.As(err, &stored) {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error":   stored.message,
			"details": stored.err.Error(),
		})
	}

	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": errInternal,
	})
}
