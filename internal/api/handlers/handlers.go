package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/callbridge/internal/domain"
	callsvc "github.com/acme/callbridge/internal/service/call"
	"github.com/acme/callbridge/pkg/calls"
	"github.com/acme/callbridge/pkg/logger"
)

// CallService is the call API the handlers depend on.
type CallService interface {
	Place(ctx context.Context, input callsvc.PlaceInput) (*callsvc.PlaceResult, error)
	Get(ctx context.Context, sid string) (calls.Call, error)
	List(ctx context.Context, afterSID string, limit int) ([]domain.CallEntry, error)
	History(ctx context.Context, sid string, limit int, pageToken string) (*callsvc.HistoryResult, error)
}

// Pinger is a backing dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	calls  CallService
	checks map[string]Pinger
	logger *logger.Logger
}

// NewHandlerSet creates a new handler bundle. checks maps a dependency name to
// its probe for /healthz.
func NewHandlerSet(calls CallService, checks map[string]Pinger, lg *logger.Logger) *HandlerSet {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &HandlerSet{calls: calls, checks: checks, logger: lg}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	calls := v1.Group("/calls")
	calls.Post("/", h.placeCall)
	calls.Get("/", h.listCalls)
	calls.Get("/:sid", h.getCall)
	calls.Get("/:sid/snapshots", h.listSnapshots)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.logger.WithContext(ctx.UserContext()).Error("request failed",
			zap.String("path", ctx.Path()),
			zap.Error(err),
		)
		message = http.StatusText(code)
	}

	body := fiber.Map{"error": message}
	if sc := trace.SpanContextFromContext(ctx.UserContext()); sc.HasTraceID() {
		body["trace_id"] = sc.TraceID().String()
	}
	return ctx.Status(code).JSON(body)
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)
	for name, check := range h.checks {
		if err := check.Ping(healthCtx); err != nil {
			errs[name] = err.Error()
		}
	}

	status := fiber.StatusOK
	state := "ok"
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
		state = "degraded"
	}

	return ctx.Status(status).JSON(fiber.Map{"status": state, "errors": errs})
}
