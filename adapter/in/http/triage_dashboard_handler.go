package http

import (
	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/pkg/apperr"
	"triage_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type DashboardHandler struct {
	dashboard in.DashboardService
}

func NewDashboardHandler(dashboard in.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

func (h *DashboardHandler) Register(api fiber.Router) {
	api.Get("/stats", h.Stats)
	api.Get("/records", h.Records)
	api.Put("/records/:id/feedback", h.SetFeedback)
}

func (h *DashboardHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.dashboard.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, stats)
}

// Records returns the recent records with the dashboard aggregates.
func (h *DashboardHandler) Records(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return apperr.InvalidInput("limit", "must not be negative")
	}

	dash, err := h.dashboard.Dashboard(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, dash, &response.Meta{Total: len(dash.Records), Limit: limit})
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

func (h *DashboardHandler) SetFeedback(c *fiber.Ctx) error {
	var req feedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	feedback, ok := domain.ParseFeedback(req.Feedback)
	if !ok {
		return apperr.InvalidInput("feedback", "must be positive or negative")
	}

	if err := h.dashboard.SetFeedback(c.UserContext(), c.Params("id"), feedback); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
