package integrity

import (
	"errors"
	"strings"

	"stock-ledger/core/ledger"
	"stock-ledger/core/logger"
	"stock-ledger/feature/stock"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// systemActor is recorded on history events of fixes made without an actor header.
const systemActor = "integrity"

// Handler handles HTTP requests for integrity checks.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the integrity routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/integrity")
	group.Get("/", h.HandleReport)
	group.Get("/schema", h.HandleSchemaCheck)
	group.Post("/fix", h.HandleFix)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, ErrSchemaUnavailable):
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusInternalServerError
	}
}

// HandleReport returns the ledger integrity report.
// @Summary Ledger Integrity Report
// @Description Scans both registries for diverged pairs, broken links and unresolvable recipes. Results are cached unless refresh is set.
// @Tags integrity
// @Produce json
// @Param refresh query boolean false "Ignore the cached report"
// @Success 200 {object} Report "Integrity Report"
// @Failure 503 {object} map[string]string "Store Unavailable"
// @Router /integrity [get]
func (h *Handler) HandleReport(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	refresh := c.Query("refresh") == "true"

	report, err := h.service.Report(c.Context(), refresh)
	if err != nil {
		l.Error("Integrity report failed", zap.Error(err))
		return c.Status(statusOf(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"report": report,
		"plan":   BuildPlan(report),
	})
}

// HandleSchemaCheck checks the ledger tables.
// @Summary Check Ledger Schema
// @Description Checks that the connected database has every column the ledger models declare.
// @Tags integrity
// @Produce json
// @Success 200 {object} checks.SchemaReport "Schema Report"
// @Failure 501 {object} map[string]string "No Database"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/schema [get]
func (h *Handler) HandleSchemaCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Starting ledger schema check")

	report, err := h.service.CheckSchema()
	if err != nil {
		l.Error("Schema check failed", zap.Error(err))
		return c.Status(statusOf(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// FixRequest is the body of POST /integrity/fix.
type FixRequest struct {
	DryRun  bool `json:"dry_run"`
	Confirm bool `json:"confirm"`
}

// HandleFix rescans the ledger and applies the repair plan.
// @Summary Repair Ledger
// @Description Resyncs diverged pairs from the raw side and clears same-registry links. Nothing is executed unless confirm is true and dry_run is false.
// @Tags integrity
// @Accept json
// @Produce json
// @Param request body FixRequest true "Fix options"
// @Success 200 {object} map[string]interface{} "Plan and result"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 500 {object} map[string]interface{} "Fix interrupted"
// @Router /integrity/fix [post]
func (h *Handler) HandleFix(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req FixRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}

	actor := ledger.Actor{
		UserID:   strings.Clone(c.Get(stock.HeaderActorID)),
		UserName: strings.Clone(c.Get(stock.HeaderActorName)),
	}
	if actor.UserName == "" {
		actor.UserName = systemActor
	}

	report, err := h.service.Report(c.Context(), true)
	if err != nil {
		l.Error("Integrity report failed", zap.Error(err))
		return c.Status(statusOf(err)).JSON(fiber.Map{"error": err.Error()})
	}
	plan := BuildPlan(report)

	result, err := h.service.ApplyFixes(c.Context(), plan, Options{DryRun: req.DryRun, Confirmed: req.Confirm}, actor)
	if err != nil {
		l.Error("Integrity fix interrupted", zap.Int("executed", result.Executed), zap.Error(err))
		return c.Status(statusOf(err)).JSON(fiber.Map{
			"error":  err.Error(),
			"plan":   plan,
			"result": result,
		})
	}

	l.Info("Integrity fix finished",
		zap.Int("planned", result.Planned),
		zap.Int("executed", result.Executed),
		zap.Bool("dry_run", result.DryRun),
	)
	return c.JSON(fiber.Map{
		"plan":   plan,
		"result": result,
	})
}
