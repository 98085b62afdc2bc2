package http

import (
	"context"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
	"triage_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	msgOnline  = "Mail Triage API Online"
	msgStarted = "Processor Started"
)

// TriggerHandler starts runs. With a publisher the request is queued for a
// worker; otherwise the run executes in a goroutine of this process.
type TriggerHandler struct {
	triage    in.TriageService
	publisher out.RunPublisher
	baseCtx   context.Context
	log       *logger.Logger
}

// NewTriggerHandler binds in-process runs to baseCtx so they stop on
// shutdown rather than with the request. publisher may be nil.
func NewTriggerHandler(baseCtx context.Context, triage in.TriageService, publisher out.RunPublisher, log *logger.Logger) *TriggerHandler {
	if log == nil {
		log = logger.Default()
	}
	return &TriggerHandler{
		triage:    triage,
		publisher: publisher,
		baseCtx:   baseCtx,
		log:       log.WithField("component", "trigger"),
	}
}

func (h *TriggerHandler) Register(app *fiber.App, api fiber.Router, limit fiber.Handler) {
	app.Get("/", limit, h.Root)
	api.Post("/runs", limit, h.StartRun)
	api.Get("/runs/state", h.State)
	api.Post("/stats/refresh", h.RefreshStats)
	api.Post("/examples/invalidate", h.InvalidateExamples)
}

// Root answers plain text: GET /?action=run starts a run, anything else is
// a liveness banner.
func (h *TriggerHandler) Root(c *fiber.Ctx) error {
	if c.Query("action") != "run" {
		return c.SendString(msgOnline)
	}
	if _, err := h.start(c.UserContext(), in.TriggerHTTP); err != nil && !apperr.HasCode(err, apperr.CodeRunInProgress) {
		return err
	}
	return c.SendString(msgStarted)
}

// StartRun is the JSON form of Root. An overlapping in-process run is a 409.
func (h *TriggerHandler) StartRun(c *fiber.Ctx) error {
	req, err := h.start(c.UserContext(), in.TriggerHTTP)
	if err != nil {
		return err
	}
	return response.Accepted(c, req)
}

func (h *TriggerHandler) start(ctx context.Context, trigger string) (*out.RunRequest, error) {
	req := &out.RunRequest{
		RequestID:   uuid.NewString(),
		Trigger:     trigger,
		RequestedAt: time.Now().UTC(),
	}

	if h.publisher != nil {
		if err := h.publisher.PublishRun(ctx, req); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternalError, "failed to queue run", fiber.StatusServiceUnavailable)
		}
		h.log.WithField("request_id", req.RequestID).Info("Run request queued")
		return req, nil
	}

	if h.triage.State() != domain.StateIdle {
		return nil, apperr.ErrRunInProgress
	}
	go func() {
		if _, err := h.triage.Run(h.baseCtx, trigger); err != nil {
			h.log.WithError(err).WithField("request_id", req.RequestID).Warn("Triggered run did not complete")
		}
	}()
	return req, nil
}

func (h *TriggerHandler) State(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"state": h.triage.State()})
}

func (h *TriggerHandler) RefreshStats(c *fiber.Ctx) error {
	stats, err := h.triage.RefreshStats(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, stats)
}

func (h *TriggerHandler) InvalidateExamples(c *fiber.Ctx) error {
	if err := h.triage.InvalidateExamples(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
