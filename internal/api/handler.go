package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/login-verifier/internal/store"
	"github.com/Checker-Finance/login-verifier/pkg/model"
)

// Runner is the monitor surface the handlers need.
type Runner interface {
	RunOnce(ctx context.Context) ([]model.Result, error)
	LastRun() (time.Time, []model.Result, error)
	Scenarios() []string
}

// ResultReader reads stored results (implemented by store.RedisStore).
type ResultReader interface {
	LatestResults(ctx context.Context, scenarios []string) ([]model.Result, error)
	History(ctx context.Context, scenario string, limit int) ([]model.Result, error)
	HealthCheck(ctx context.Context) error
}

// ConnChecker reports broker connectivity (implemented by publisher.Publisher).
type ConnChecker interface {
	Connected() bool
}

// RunResponse is returned by the run and results endpoints.
type RunResponse struct {
	Passed  bool           `json:"passed"`
	Results []model.Result `json:"results"`
	RanAt   *time.Time     `json:"ranAt,omitempty"`
}

// Handler serves the verifier's ops endpoints.
type Handler struct {
	logger *zap.Logger
	runner Runner
	reader ResultReader
	broker ConnChecker
}

// NewHandler creates a Handler. reader and broker are optional.
func NewHandler(logger *zap.Logger, runner Runner, reader ResultReader, broker ConnChecker) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logger: logger, runner: runner, reader: reader, broker: broker}
}

// Health reports dependency state. The contract check is informational and
// never turns the endpoint unhealthy on its own.
func (h *Handler) Health(c *fiber.Ctx) error {
	checks := map[string]string{}
	status := "ok"
	code := fiber.StatusOK

	if h.reader != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		checks["store"] = "ok"
		if err := h.reader.HealthCheck(ctx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
	}
	if h.broker != nil {
		checks["nats"] = "ok"
		if !h.broker.Connected() {
			checks["nats"] = "disconnected"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
	}

	body := fiber.Map{"status": status, "checks": checks}
	at, results, err := h.runner.LastRun()
	switch {
	case err != nil:
		checks["contract"] = "error"
		body["contractError"] = err.Error()
	case at.IsZero():
		checks["contract"] = "pending"
	case model.AllPassed(results):
		checks["contract"] = "passing"
	default:
		checks["contract"] = "failing"
	}

	return c.Status(code).JSON(body)
}

// Run triggers a verification run. 200 when every scenario passed, 422 otherwise.
func (h *Handler) Run(c *fiber.Ctx) error {
	results, err := h.runner.RunOnce(c.UserContext())
	if err != nil {
		h.logger.Error("api.run_failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}

	resp := RunResponse{Passed: model.AllPassed(results), Results: results}
	if !resp.Passed {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(resp)
	}
	return c.JSON(resp)
}

// LatestResults returns the latest result per scenario, from the store when
// configured and otherwise from the last in-process run. A run that could not
// start has no results and is reported as 503.
func (h *Handler) LatestResults(c *fiber.Ctx) error {
	if h.reader == nil {
		at, results, err := h.runner.LastRun()
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error(), "ranAt": at})
		}
		if at.IsZero() || len(results) == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no runs yet"})
		}
		return c.JSON(RunResponse{Passed: model.AllPassed(results), Results: results, RanAt: &at})
	}

	results, err := h.reader.LatestResults(c.UserContext(), h.runner.Scenarios())
	if err != nil {
		h.logger.Error("api.latest_results_failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if len(results) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no runs yet"})
	}
	return c.JSON(RunResponse{Passed: model.AllPassed(results), Results: results})
}

// History returns stored results for one scenario, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	if h.reader == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "history requires a result store"})
	}

	scenario := c.Params("scenario")
	if !h.knownScenario(scenario) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown scenario " + strconv.Quote(scenario)})
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
		}
		limit = n
	}

	results, err := h.reader.History(c.UserContext(), scenario, limit)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("api.history_failed", zap.String("scenario", scenario), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"scenario": scenario, "results": results})
}

func (h *Handler) knownScenario(name string) bool {
	for _, s := range h.runner.Scenarios() {
		if s == name {
			return true
		}
	}
	return false
}
