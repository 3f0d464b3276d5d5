// Package web provides HTTP handlers and REST API endpoints for plan management.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/planbook/planbook/pkg/models"
	"github.com/planbook/planbook/pkg/notebook"
	"github.com/planbook/planbook/pkg/persistence"
	"github.com/planbook/planbook/pkg/registry"
	"github.com/planbook/planbook/pkg/state"
)

type APIHandlers struct {
	notebook    *notebook.Notebook
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	nb *notebook.Notebook,
	persist persistence.Persistence,
	reg *registry.Registry,
	validate *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		notebook:    nb,
		persistence: persist,
		registry:    reg,
		validator:   validate,
		logger:      logger,
	}
}

func (h *APIHandlers) GetPlans(c fiber.Ctx) error {
	plans := h.notebook.GetAllPlans()

	return c.JSON(fiber.Map{
		"plans":       plans,
		"total_count": len(plans),
	})
}

func (h *APIHandlers) GetPlan(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Plan ID is required")
	}

	plan, err := h.notebook.GetPlan(id)
	if err != nil {
		return handleNotebookError(c, err)
	}

	return c.JSON(plan)
}

func (h *APIHandlers) CreatePlan(c fiber.Ctx) error {
	var req CreatePlanRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	plan, err := h.notebook.CreatePlan(req.Name, req.Description)
	if err != nil {
		return handleNotebookError(c, err)
	}

	h.savePlan(c, plan)

	return c.Status(fiber.StatusCreated).JSON(plan)
}

func (h *APIHandlers) DeletePlan(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Plan ID is required")
	}

	if !h.notebook.DeletePlan(id) {
		return notFound(c, "Plan not found")
	}

	if h.persistence != nil {
		if err := h.persistence.DeletePlan(c.Context(), id); err != nil {
			h.logger.ErrorContext(c.Context(), "Failed to delete stored plan", "plan_id", id, "error", err)
		}
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddTask(c fiber.Ctx) error {
	plan, err := h.planFromParams(c)
	if err != nil {
		return handleNotebookError(c, err)
	}

	var req AddTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	parentID := req.ParentID
	if parentID == "" {
		parentID = plan.RootID
	}

	node, err := h.notebook.AddTask(plan, parentID, notebook.TaskSpec{
		Name:          req.Name,
		Description:   req.Description,
		AssignedAgent: req.AssignedAgent,
		ToolName:      req.ToolName,
		Inputs:        req.Inputs,
		MaxRetries:    req.MaxRetries,
	})
	if err != nil {
		return handleNotebookError(c, err)
	}

	h.savePlan(c, plan)

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) AddSubPlan(c fiber.Ctx) error {
	plan, err := h.planFromParams(c)
	if err != nil {
		return handleNotebookError(c, err)
	}

	var req AddSubPlanRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	parentID := req.ParentID
	if parentID == "" {
		parentID = plan.RootID
	}

	node, err := h.notebook.AddSubPlan(plan, parentID, req.Name, req.Description)
	if err != nil {
		return handleNotebookError(c, err)
	}

	h.savePlan(c, plan)

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) AddGroup(c fiber.Ctx) error {
	plan, err := h.planFromParams(c)
	if err != nil {
		return handleNotebookError(c, err)
	}

	var req AddGroupRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	parentID := req.ParentID
	if parentID == "" {
		parentID = plan.RootID
	}

	node, err := h.notebook.AddGroup(plan, parentID, models.NodeType(req.Type), req.Name)
	if err != nil {
		return handleNotebookError(c, err)
	}

	h.savePlan(c, plan)

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) AddDependency(c fiber.Ctx) error {
	plan, err := h.planFromParams(c)
	if err != nil {
		return handleNotebookError(c, err)
	}

	var req AddDependencyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.notebook.AddDependency(plan, req.NodeID, req.DependsOnID); err != nil {
		return handleNotebookError(c, err)
	}

	h.savePlan(c, plan)

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ExecutePlan(c fiber.Ctx) error {
	plan, err := h.planFromParams(c)
	if err != nil {
		return handleNotebookError(c, err)
	}

	var req ExecutePlanRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	ec, err := h.buildExecutionContext(c, plan, req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	summary, err := h.notebook.ExecutePlan(c.Context(), plan, ec)

	h.savePlan(c, plan)

	if err != nil {
		return handleNotebookError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) GetPlanSummary(c fiber.Ctx) error {
	plan, err := h.planFromParams(c)
	if err != nil {
		return handleNotebookError(c, err)
	}

	return c.JSON(plan.ExecutionSummary())
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()

	repositoryCheck := "not configured"
	repOk := true

	if h.persistence != nil {
		repositoryCheck = "ok"

		if err := h.persistence.HealthCheck(c.Context()); err != nil {
			repositoryCheck = err.Error()
			repOk = false
		}
	}

	status := "unhealthy"
	message := "Planbook API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Planbook API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) planFromParams(c fiber.Ctx) (*models.Plan, error) {
	id := c.Params("id")
	if id == "" {
		return nil, notebook.ErrPlanNotFound
	}

	return h.notebook.GetPlan(id)
}

// buildExecutionContext assembles the run environment: options from the
// request, tools created for every tool name the plan references, and
// agents built from the request's agent configs.
func (h *APIHandlers) buildExecutionContext(c fiber.Ctx, plan *models.Plan, req ExecutePlanRequest) (*notebook.ExecutionContext, error) {
	opts := models.DefaultExecutionOptions()

	if req.MaxParallelism > 0 {
		opts.MaxParallelism = req.MaxParallelism
	}

	opts.ContinueOnError = req.ContinueOnError
	opts.EnableRetry = !req.DisableRetry
	opts.PropagateOutputs = !req.DisableOutputSharing

	if req.GlobalTimeoutSeconds > 0 {
		opts.GlobalTimeout = time.Duration(req.GlobalTimeoutSeconds) * time.Second
	}

	ec := notebook.NewExecutionContext(opts)
	ec.Registry = h.registry
	ec.State = state.NewMemoryStore(req.InitialState)

	for _, node := range plan.Nodes {
		if node.ToolName == "" {
			continue
		}

		if _, ok := ec.Tools[node.ToolName]; ok {
			continue
		}

		tool, err := h.registry.CreateTool(node.ToolName, nil)
		if err != nil {
			h.logger.WarnContext(c.Context(), "Tool referenced by plan is not registered",
				"plan_id", plan.ID, "tool", node.ToolName, "error", err)

			continue
		}

		ec.WithTool(tool)
	}

	for _, agentConfig := range req.Agents {
		agent, err := h.registry.CreateAgent(agentConfig.Type, agentConfig.Config)
		if err != nil {
			return nil, err
		}

		ec.WithAgent(agent)
	}

	return ec, nil
}

func (h *APIHandlers) savePlan(c fiber.Ctx, plan *models.Plan) {
	if h.persistence == nil {
		return
	}

	if err := h.persistence.SavePlan(c.Context(), plan); err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to persist plan", "plan_id", plan.ID, "error", err)
	}
}
