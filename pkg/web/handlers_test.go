package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/planbook/planbook/pkg/models"
	"github.com/planbook/planbook/pkg/notebook"
	"github.com/planbook/planbook/pkg/persistence/file"
	"github.com/planbook/planbook/pkg/registry"
	"github.com/planbook/planbook/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *notebook.Notebook) {
	t.Helper()

	nb := notebook.NewNotebook()
	persist := file.NewPersistence(t.TempDir())
	reg := registry.NewDefaultRegistry(slog.Default())
	validate := validator.New(validator.WithRequiredStructEnabled())

	handlers := web.NewAPIHandlers(nb, persist, reg, validate, slog.Default())

	app := fiber.New()

	p := app.Group("/plans")
	p.Get("/", handlers.GetPlans)
	p.Post("/", handlers.CreatePlan)
	p.Get("/:id", handlers.GetPlan)
	p.Delete("/:id", handlers.DeletePlan)
	p.Get("/:id/summary", handlers.GetPlanSummary)
	p.Post("/:id/tasks", handlers.AddTask)
	p.Post("/:id/subplans", handlers.AddSubPlan)
	p.Post("/:id/groups", handlers.AddGroup)
	p.Post("/:id/dependencies", handlers.AddDependency)
	p.Post("/:id/execute", handlers.ExecutePlan)

	app.Get("/health", handlers.HealthCheck)

	return app, nb
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any) *http.Response {
	t.Helper()

	var body []byte

	if payload != nil {
		if str, ok := payload.(string); ok {
			body = []byte(str)
		} else {
			var err error
			body, err = json.Marshal(payload)
			require.NoError(t, err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, target))
}

func TestAPIHandlers_CreatePlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name: "successful creation",
			requestBody: web.CreatePlanRequest{
				Name:        "Research Plan",
				Description: "Gather and summarize sources",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "validation error - missing name",
			requestBody:    web.CreatePlanRequest{Description: "No name"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "validation error - name too short",
			requestBody:    web.CreatePlanRequest{Name: "ab"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _ := setupTestApp(t)

			resp := doJSON(t, app, http.MethodPost, "/plans", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				var plan models.Plan
				decodeBody(t, resp, &plan)

				assert.NotEmpty(t, plan.ID)
				assert.Equal(t, "Research Plan", plan.Name)
				assert.Equal(t, models.PlanStatusDraft, plan.Status)
				require.NotNil(t, plan.Root())
				assert.Equal(t, models.NodeTypeSequential, plan.Root().Type)
			} else {
				_ = resp.Body.Close()
			}
		})
	}
}

func TestAPIHandlers_GetPlan_NotFound(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/plans/unknown", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_AddTask(t *testing.T) {
	t.Parallel()

	app, nb := setupTestApp(t)

	plan, err := nb.CreatePlan("Task Plan", "")
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodPost, "/plans/"+plan.ID+"/tasks", web.AddTaskRequest{
		Name:       "Write report",
		ToolName:   "log",
		Inputs:     map[string]any{"message": "writing"},
		MaxRetries: 2,
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var node models.PlanNode
	decodeBody(t, resp, &node)

	assert.Equal(t, "Write report", node.Name)
	assert.Equal(t, models.NodeTypeTask, node.Type)
	assert.Equal(t, plan.RootID, node.ParentID)
	assert.Equal(t, 2, node.MaxRetries)
}

func TestAPIHandlers_AddTask_UnknownParent(t *testing.T) {
	t.Parallel()

	app, nb := setupTestApp(t)

	plan, err := nb.CreatePlan("Task Plan", "")
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodPost, "/plans/"+plan.ID+"/tasks", web.AddTaskRequest{
		Name:     "Orphan",
		ParentID: "missing-parent",
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_AddGroup_InvalidType(t *testing.T) {
	t.Parallel()

	app, nb := setupTestApp(t)

	plan, err := nb.CreatePlan("Group Plan", "")
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodPost, "/plans/"+plan.ID+"/groups", web.AddGroupRequest{
		Type: "task",
		Name: "Bad group",
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_AddDependency(t *testing.T) {
	t.Parallel()

	app, nb := setupTestApp(t)

	plan, err := nb.CreatePlan("Dependency Plan", "")
	require.NoError(t, err)

	first, err := nb.AddTask(plan, plan.RootID, notebook.TaskSpec{Name: "first", ToolName: "log"})
	require.NoError(t, err)

	second, err := nb.AddTask(plan, plan.RootID, notebook.TaskSpec{Name: "second", ToolName: "log"})
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodPost, "/plans/"+plan.ID+"/dependencies", web.AddDependencyRequest{
		NodeID:      second.ID,
		DependsOnID: first.ID,
	})
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, plan.FindNode(second.ID).DependsOn(first.ID))
}

func TestAPIHandlers_AddDependency_UnknownNode(t *testing.T) {
	t.Parallel()

	app, nb := setupTestApp(t)

	plan, err := nb.CreatePlan("Dependency Plan", "")
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodPost, "/plans/"+plan.ID+"/dependencies", web.AddDependencyRequest{
		NodeID:      "ghost",
		DependsOnID: plan.RootID,
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_ExecutePlan(t *testing.T) {
	t.Parallel()

	app, nb := setupTestApp(t)

	plan, err := nb.CreatePlan("Execute Plan", "")
	require.NoError(t, err)

	_, err = nb.AddTask(plan, plan.RootID, notebook.TaskSpec{
		Name:     "say hello",
		ToolName: "log",
		Inputs:   map[string]any{"message": "hello"},
	})
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodPost, "/plans/"+plan.ID+"/execute", web.ExecutePlanRequest{
		MaxParallelism: 2,
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary models.ExecutionSummary
	decodeBody(t, resp, &summary)

	assert.Equal(t, models.PlanStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.TotalNodes)
	assert.Equal(t, 1, summary.CompletedNodes)
}

func TestAPIHandlers_ExecutePlan_CycleIsUnprocessable(t *testing.T) {
	t.Parallel()

	app, nb := setupTestApp(t)

	plan, err := nb.CreatePlan("Cyclic Plan", "")
	require.NoError(t, err)

	a, err := nb.AddTask(plan, plan.RootID, notebook.TaskSpec{Name: "a", ToolName: "log"})
	require.NoError(t, err)

	b, err := nb.AddTask(plan, plan.RootID, notebook.TaskSpec{Name: "b", ToolName: "log"})
	require.NoError(t, err)

	require.NoError(t, nb.AddDependency(plan, a.ID, b.ID))
	require.NoError(t, nb.AddDependency(plan, b.ID, a.ID))

	resp := doJSON(t, app, http.MethodPost, "/plans/"+plan.ID+"/execute", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAPIHandlers_DeletePlan(t *testing.T) {
	t.Parallel()

	app, nb := setupTestApp(t)

	plan, err := nb.CreatePlan("Delete Plan", "")
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodDelete, "/plans/"+plan.ID, nil)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, http.MethodDelete, "/plans/"+plan.ID, nil)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	decodeBody(t, resp, &health)

	assert.Equal(t, "healthy", health["status"])
}
