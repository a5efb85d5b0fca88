// Package api implements the HTTP entry points of §6 on top of
// echo, grounded on the teacher's cmd/orchestrator/handlers style
// (struct-wrapped dependencies, echo.NewHTTPError for client errors).
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lyzr/flowengine/internal/broadcaster"
	"github.com/lyzr/flowengine/internal/engine"
	"github.com/lyzr/flowengine/internal/logger"
	"github.com/lyzr/flowengine/internal/model"
	"github.com/lyzr/flowengine/internal/store"
)

// Handler wires the engine and stores into echo route handlers.
type Handler struct {
	Engine      *engine.Engine
	Runs        store.RunStore
	Ledger      store.LedgerStore
	Approvals   store.ApprovalStore
	Broadcaster *broadcaster.Server
	Auth        *TokenAuthenticator
	Log         *logger.Logger
}

// Register mounts every §6 route onto e.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/workflows/:id/execute", h.Execute)
	e.POST("/workflows/:id/runs/:run_id/nodes/:node_id/approve", h.Approve)
	e.POST("/runs/:run_id/replay", h.Replay)
	e.GET("/workflows/:id/runs", h.ListRuns, RequireWorkflowOwnership(h.Auth))
	e.GET("/runs/:run_id/ledger", h.GetLedger)
	e.GET("/api/ws/workflows/:id", h.WebSocket)
}

// Execute handles POST /workflows/{id}/execute.
func (h *Handler) Execute(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow id")
	}

	var initialInput map[string]interface{}
	if err := c.Bind(&initialInput); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	run, err := h.Engine.StartRun(c.Request().Context(), workflowID, initialInput)
	if err != nil {
		h.Log.Error("start run failed", "workflow_id", workflowID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start run")
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{"run_id": run.ID})
}

type approveRequest struct {
	Decision string `json:"decision"`
}

// Approve handles POST /workflows/{id}/runs/{run_id}/nodes/{node_id}/approve.
func (h *Handler) Approve(c echo.Context) error {
	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}
	nodeID := c.Param("node_id")

	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Decision != "yes" && req.Decision != "no" {
		return echo.NewHTTPError(http.StatusBadRequest, `decision must be "yes" or "no"`)
	}

	run, err := h.Runs.Get(c.Request().Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load run")
	}
	if run.Status != model.RunAwaitingApproval {
		return echo.NewHTTPError(http.StatusConflict, "run is not awaiting approval")
	}

	err = h.Engine.ResumeApproval(c.Request().Context(), runID, nodeID, req.Decision, "")
	switch {
	case errors.Is(err, engine.ErrAlreadyResumed):
		return echo.NewHTTPError(http.StatusNotFound, "no pending approval request")
	case err != nil:
		h.Log.Error("resume approval failed", "run_id", runID, "node_id", nodeID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resume run")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "run_id": runID})
}

// Replay handles POST /runs/{run_id}/replay.
func (h *Handler) Replay(c echo.Context) error {
	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	original, err := h.Runs.Get(c.Request().Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load run")
	}

	replay, err := h.Engine.StartRun(c.Request().Context(), original.WorkflowID, original.InitialInput)
	if err != nil {
		h.Log.Error("replay failed", "run_id", runID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to replay run")
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{"run_id": replay.ID})
}

// ListRuns handles GET /workflows/{id}/runs.
func (h *Handler) ListRuns(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow id")
	}

	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	runs, err := h.Runs.ListByWorkflow(c.Request().Context(), workflowID, limit, offset)
	if err != nil {
		h.Log.Error("list runs failed", "workflow_id", workflowID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}
	return c.JSON(http.StatusOK, runs)
}

// GetLedger handles GET /runs/{run_id}/ledger.
func (h *Handler) GetLedger(c echo.Context) error {
	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	entries, err := h.Ledger.ListByRun(c.Request().Context(), runID)
	if err != nil {
		h.Log.Error("list ledger failed", "run_id", runID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load ledger")
	}
	return c.JSON(http.StatusOK, entries)
}

// WebSocket handles WS /api/ws/workflows/{id}.
func (h *Handler) WebSocket(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow id")
	}
	h.Broadcaster.HandleWebSocket(c.Response(), c.Request(), workflowID)
	return nil
}

func queryInt(c echo.Context, key string, def int) int {
	v := c.QueryParam(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
