package notebook

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/planbook/planbook/pkg/models"
	"github.com/planbook/planbook/pkg/state"
	"github.com/planbook/planbook/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusRecorder captures node status transitions in delivery order.
type statusRecorder struct {
	mu      sync.Mutex
	changes []StatusChange
}

func (r *statusRecorder) observe(change StatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes = append(r.changes, change)
}

func (r *statusRecorder) all() []StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]StatusChange(nil), r.changes...)
}

// indexOf returns the position of the first transition of nodeID into
// status, or -1.
func (r *statusRecorder) indexOf(nodeID string, status models.NodeStatus) int {
	for i, change := range r.all() {
		if change.NodeID == nodeID && change.To == status {
			return i
		}
	}

	return -1
}

func (r *statusRecorder) reasonFor(nodeID string, status models.NodeStatus) string {
	for _, change := range r.all() {
		if change.NodeID == nodeID && change.To == status {
			return change.Reason
		}
	}

	return ""
}

// countingAgent tracks the peak number of simultaneous calls.
type countingAgent struct {
	name    string
	mu      sync.Mutex
	current int
	peak    int
}

func (a *countingAgent) Name() string {
	return a.name
}

func (a *countingAgent) Call(_ context.Context, _ string) (string, error) {
	a.mu.Lock()
	a.current++

	if a.current > a.peak {
		a.peak = a.current
	}
	a.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	a.mu.Lock()
	a.current--
	a.mu.Unlock()

	return "done", nil
}

func (a *countingAgent) Peak() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.peak
}

func TestExecutePlan_EmptyPlan(t *testing.T) {
	nb := NewNotebook()
	plan := testutil.CreateTestPlan("empty")

	summary, err := nb.ExecutePlan(context.Background(), plan, nil)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCompleted, summary.Status)
	assert.Zero(t, summary.TotalNodes)
}

func TestExecutePlan_SingleTask(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(testutil.WithName("greet"))
	plan := testutil.CreateTestPlan("single", task)

	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.WithAgent(&testutil.ScriptedAgent{AgentName: "worker", Reply: "hello"})

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.CompletedNodes)
	assert.Equal(t, models.NodeStatusCompleted, task.Status)
	assert.Equal(t, "hello", task.Output)

	result := summary.NodeResults[task.ID]
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Attempts)
	require.NotNil(t, result.StartedAt)
	require.NotNil(t, result.CompletedAt)
}

func TestExecutePlan_DependencyOrdering(t *testing.T) {
	nb := NewNotebook()

	first := testutil.CreateTestNode(testutil.WithName("first"))
	second := testutil.CreateTestNode(
		testutil.WithName("second"),
		testutil.WithDependencies(first.ID),
	)
	third := testutil.CreateTestNode(
		testutil.WithName("third"),
		testutil.WithDependencies(first.ID),
	)
	plan := testutil.CreateTestPlan("ordering", first, second, third)

	recorder := &statusRecorder{}
	nb.SubscribeStatusChanges(recorder.observe)

	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.WithAgent(&testutil.ScriptedAgent{AgentName: "worker"})

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCompleted, summary.Status)

	firstDone := recorder.indexOf(first.ID, models.NodeStatusCompleted)
	require.NotEqual(t, -1, firstDone)

	for _, dependent := range []*models.PlanNode{second, third} {
		started := recorder.indexOf(dependent.ID, models.NodeStatusInProgress)
		require.NotEqual(t, -1, started)
		assert.Greater(t, started, firstDone,
			"%s must not start before its dependency completes", dependent.Name)
	}
}

func TestExecutePlan_ParallelismBound(t *testing.T) {
	nb := NewNotebook()

	nodes := []*models.PlanNode{
		testutil.CreateTestNode(testutil.WithName("a")),
		testutil.CreateTestNode(testutil.WithName("b")),
		testutil.CreateTestNode(testutil.WithName("c")),
		testutil.CreateTestNode(testutil.WithName("d")),
	}
	plan := testutil.CreateTestPlan("bounded", nodes...)

	agent := &countingAgent{name: "worker"}

	opts := models.DefaultExecutionOptions()
	opts.MaxParallelism = 2
	ec := NewExecutionContext(opts)
	ec.WithAgent(agent)

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCompleted, summary.Status)
	assert.Equal(t, 4, summary.CompletedNodes)
	assert.LessOrEqual(t, agent.Peak(), 2)
}

// A top-level node may depend on a node buried inside a composite. The
// scheduling loop then re-reads interior statuses while the composite's
// own goroutines are still writing them, so the whole run doubles as a
// race-detector exercise for the shared status lock.
func TestExecutePlan_DependencyOnCompositeInterior(t *testing.T) {
	nb := NewNotebook()

	group := testutil.CreateTestNode(
		testutil.WithName("fan out"),
		testutil.WithType(models.NodeTypeParallel),
	)

	interiors := make([]*models.PlanNode, 0, 8)
	for i := 0; i < 8; i++ {
		interiors = append(interiors,
			testutil.CreateTestNode(testutil.WithName(fmt.Sprintf("branch %d", i))))
	}

	meanwhile := testutil.CreateTestNode(testutil.WithName("meanwhile"))
	after := testutil.CreateTestNode(
		testutil.WithName("after"),
		testutil.WithDependencies(interiors[0].ID),
	)

	plan := testutil.CreateTestPlan("interior edge", group, meanwhile, after)
	for _, interior := range interiors {
		addChild(plan, group, interior)
	}

	recorder := &statusRecorder{}
	nb.SubscribeStatusChanges(recorder.observe)

	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.WithAgent(&countingAgent{name: "worker"})

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCompleted, summary.Status)
	assert.Equal(t, models.NodeStatusCompleted, after.Status)

	assert.Greater(t,
		recorder.indexOf(after.ID, models.NodeStatusInProgress),
		recorder.indexOf(interiors[0].ID, models.NodeStatusCompleted),
		"after must wait for the interior node to complete")
}

func TestExecutePlan_RetryConvergence(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(
		testutil.WithName("flaky task"),
		testutil.WithMaxRetries(3),
	)
	plan := testutil.CreateTestPlan("retry", task)

	recorder := &statusRecorder{}
	nb.SubscribeStatusChanges(recorder.observe)

	agent := &testutil.FlakyAgent{AgentName: "worker", FailuresBeforeSuccess: 2}
	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.WithAgent(agent)

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCompleted, summary.Status)
	assert.Equal(t, models.NodeStatusCompleted, task.Status)
	assert.Equal(t, 2, task.RetryCount)
	assert.Equal(t, 3, agent.Calls())
	assert.Equal(t, 3, summary.NodeResults[task.ID].Attempts)
	assert.Equal(t, reasonRetrying, recorder.reasonFor(task.ID, models.NodeStatusPending))
}

func TestExecutePlan_RetryBudgetExhausted(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(
		testutil.WithName("hopeless task"),
		testutil.WithMaxRetries(2),
	)
	plan := testutil.CreateTestPlan("exhausted", task)

	agent := &testutil.FlakyAgent{AgentName: "worker", FailuresBeforeSuccess: 10}
	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.WithAgent(agent)

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusFailed, summary.Status)
	assert.Equal(t, models.NodeStatusFailed, task.Status)
	assert.Equal(t, 2, task.RetryCount)
	assert.Equal(t, 3, agent.Calls())
	assert.Equal(t, 1, summary.FailedNodes)
}

func TestExecutePlan_RetryDisabled(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(
		testutil.WithName("flaky task"),
		testutil.WithMaxRetries(3),
	)
	plan := testutil.CreateTestPlan("no retry", task)

	agent := &testutil.FlakyAgent{AgentName: "worker", FailuresBeforeSuccess: 1}

	opts := models.DefaultExecutionOptions()
	opts.EnableRetry = false
	ec := NewExecutionContext(opts)
	ec.WithAgent(agent)

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusFailed, summary.Status)
	assert.Equal(t, 0, task.RetryCount)
	assert.Equal(t, 1, agent.Calls())
}

func TestExecutePlan_FailureCancelsPending(t *testing.T) {
	nb := NewNotebook()

	failing := testutil.CreateTestNode(
		testutil.WithName("failing"),
		testutil.WithAgent("bad"),
	)
	blocked := testutil.CreateTestNode(
		testutil.WithName("blocked"),
		testutil.WithDependencies(failing.ID),
	)
	plan := testutil.CreateTestPlan("cascade", failing, blocked)

	recorder := &statusRecorder{}
	nb.SubscribeStatusChanges(recorder.observe)

	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.Agents["bad"] = &testutil.ScriptedAgent{AgentName: "bad", Err: assert.AnError}

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusFailed, summary.Status)
	assert.Equal(t, models.NodeStatusFailed, failing.Status)
	assert.Equal(t, models.NodeStatusCancelled, blocked.Status)
	assert.Equal(t, reasonPreviousFailed,
		recorder.reasonFor(blocked.ID, models.NodeStatusCancelled))
}

func TestExecutePlan_ContinueOnError(t *testing.T) {
	nb := NewNotebook()

	failing := testutil.CreateTestNode(
		testutil.WithName("failing"),
		testutil.WithAgent("bad"),
	)
	independent := testutil.CreateTestNode(testutil.WithName("independent"))
	plan := testutil.CreateTestPlan("continue", failing, independent)

	opts := models.DefaultExecutionOptions()
	opts.ContinueOnError = true
	ec := NewExecutionContext(opts)
	ec.WithAgent(&testutil.ScriptedAgent{AgentName: "worker"})
	ec.Agents["bad"] = &testutil.ScriptedAgent{AgentName: "bad", Err: assert.AnError}

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusFailed, summary.Status)
	assert.Equal(t, models.NodeStatusCompleted, independent.Status)
	assert.Equal(t, 1, summary.CompletedNodes)
	assert.Equal(t, 1, summary.FailedNodes)
}

func TestExecutePlan_ContinueOnError_UnsatisfiedDependency(t *testing.T) {
	nb := NewNotebook()

	failing := testutil.CreateTestNode(
		testutil.WithName("failing"),
		testutil.WithAgent("bad"),
	)
	blocked := testutil.CreateTestNode(
		testutil.WithName("blocked"),
		testutil.WithDependencies(failing.ID),
	)
	plan := testutil.CreateTestPlan("dep cascade", failing, blocked)

	recorder := &statusRecorder{}
	nb.SubscribeStatusChanges(recorder.observe)

	opts := models.DefaultExecutionOptions()
	opts.ContinueOnError = true
	ec := NewExecutionContext(opts)
	ec.Agents["bad"] = &testutil.ScriptedAgent{AgentName: "bad", Err: assert.AnError}

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusFailed, summary.Status)
	assert.Equal(t, models.NodeStatusCancelled, blocked.Status)
	assert.Equal(t, reasonDepUnsatisfied,
		recorder.reasonFor(blocked.ID, models.NodeStatusCancelled))
}

func TestExecutePlan_CycleIsFatal(t *testing.T) {
	nb := NewNotebook()

	first := testutil.CreateTestNode(testutil.WithName("first"))
	second := testutil.CreateTestNode(testutil.WithName("second"))
	first.Dependencies = []string{second.ID}
	second.Dependencies = []string{first.ID}
	plan := testutil.CreateTestPlan("cycle", first, second)

	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.WithAgent(&testutil.ScriptedAgent{AgentName: "worker"})

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.Error(t, err)
	assert.Nil(t, summary)

	var unsatisfiable *UnsatisfiableDependencyError
	require.ErrorAs(t, err, &unsatisfiable)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, unsatisfiable.NodeIDs)
	assert.Contains(t, err.Error(), first.ID)
	assert.Contains(t, err.Error(), second.ID)
	assert.Equal(t, models.PlanStatusFailed, plan.Status)
}

func TestExecutePlan_DanglingDependencyIsFatal(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(
		testutil.WithName("stranded"),
		testutil.WithDependencies("ghost"),
	)
	plan := testutil.CreateTestPlan("dangling", task)

	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.WithAgent(&testutil.ScriptedAgent{AgentName: "worker"})

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.Error(t, err)
	assert.Nil(t, summary)

	var unsatisfiable *UnsatisfiableDependencyError
	require.ErrorAs(t, err, &unsatisfiable)
	assert.Contains(t, unsatisfiable.NodeIDs, task.ID)
}

func TestExecutePlan_GlobalTimeout(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(testutil.WithName("stuck"))
	plan := testutil.CreateTestPlan("timeout", task)

	agent := testutil.NewBlockingAgent("worker")
	defer agent.Release()

	opts := models.DefaultExecutionOptions()
	opts.GlobalTimeout = 50 * time.Millisecond
	ec := NewExecutionContext(opts)
	ec.WithAgent(agent)

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCancelled, summary.Status)
	assert.Equal(t, models.NodeStatusCancelled, task.Status)
	assert.Equal(t, 1, summary.CancelledNodes)
}

func TestExecutePlan_ContextCancellation(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(testutil.WithName("stuck"))
	plan := testutil.CreateTestPlan("cancelled", task)

	agent := testutil.NewBlockingAgent("worker")
	defer agent.Release()

	recorder := &statusRecorder{}
	nb.SubscribeStatusChanges(recorder.observe)

	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.WithAgent(agent)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	summary, err := nb.ExecutePlan(ctx, plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCancelled, summary.Status)
	assert.Equal(t, reasonRunCancelled,
		recorder.reasonFor(task.ID, models.NodeStatusCancelled))
}

func TestExecutePlan_OutputPropagation(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(testutil.WithName("producer"))
	plan := testutil.CreateTestPlan("outputs", task)

	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.WithAgent(&testutil.ScriptedAgent{AgentName: "worker", Reply: "forty-two"})

	_, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	value, err := ec.State.Get(context.Background(), "outputs."+task.ID)
	require.NoError(t, err)
	assert.Equal(t, "forty-two", value)
}

func TestExecutePlan_OutputPropagationDisabled(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(testutil.WithName("producer"))
	plan := testutil.CreateTestPlan("no outputs", task)

	opts := models.DefaultExecutionOptions()
	opts.PropagateOutputs = false
	ec := NewExecutionContext(opts)
	ec.WithAgent(&testutil.ScriptedAgent{AgentName: "worker", Reply: "forty-two"})

	_, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	_, err = ec.State.Get(context.Background(), "outputs."+task.ID)
	require.ErrorIs(t, err, state.ErrKeyNotFound)
}

func TestExecutePlan_NoAgentAvailable(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(testutil.WithName("orphan"))
	plan := testutil.CreateTestPlan("agentless", task)

	summary, err := nb.ExecutePlan(context.Background(), plan, NewExecutionContext(models.DefaultExecutionOptions()))
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusFailed, summary.Status)
	assert.Equal(t, models.NodeStatusFailed, task.Status)
	assert.Equal(t, "No agent available", task.Error)
}

func TestExecutePlan_ToolTask(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(
		testutil.WithName("echo step"),
		testutil.WithTool("echo", map[string]any{"message": "{{.state.greeting}}"}),
	)
	plan := testutil.CreateTestPlan("tooling", task)

	tool := &testutil.ScriptedTool{ToolName: "echo"}

	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.State = state.NewMemoryStore(map[string]any{"greeting": "hello"})
	ec.WithTool(tool)

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCompleted, summary.Status)
	assert.Equal(t, models.NodeStatusCompleted, task.Status)

	inputs := tool.Inputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, "hello", inputs[0]["message"])
}

func TestExecutePlan_ToolReportedFailure(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(
		testutil.WithName("broken step"),
		testutil.WithTool("broken", nil),
	)
	plan := testutil.CreateTestPlan("tool failure", task)

	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.WithTool(&testutil.ScriptedTool{ToolName: "broken", Err: assert.AnError})

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusFailed, summary.Status)
	assert.True(t, strings.Contains(task.Error, assert.AnError.Error()))
}

func TestExecutePlan_Rerun(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(
		testutil.WithName("flaky task"),
		testutil.WithMaxRetries(3),
	)
	plan := testutil.CreateTestPlan("rerun", task)

	agent := &testutil.FlakyAgent{AgentName: "worker", FailuresBeforeSuccess: 1}
	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.WithAgent(agent)

	summary, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCompleted, summary.Status)
	assert.Equal(t, 1, task.RetryCount)

	// A second run starts from a clean slate: statuses, retry counters,
	// and outputs are reset before scheduling.
	summary, err = nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCompleted, summary.Status)
	assert.Zero(t, task.RetryCount)
}

func TestExecutePlan_PlanCompletedObserver(t *testing.T) {
	nb := NewNotebook()

	task := testutil.CreateTestNode(testutil.WithName("only"))
	plan := testutil.CreateTestPlan("observed", task)

	var (
		mu       sync.Mutex
		gotPlan  string
		gotState models.PlanStatus
	)

	nb.SubscribePlanCompleted(func(planID string, status models.PlanStatus) {
		mu.Lock()
		defer mu.Unlock()

		gotPlan = planID
		gotState = status
	})

	ec := NewExecutionContext(models.DefaultExecutionOptions())
	ec.WithAgent(&testutil.ScriptedAgent{AgentName: "worker"})

	_, err := nb.ExecutePlan(context.Background(), plan, ec)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, plan.ID, gotPlan)
	assert.Equal(t, models.PlanStatusCompleted, gotState)
}
