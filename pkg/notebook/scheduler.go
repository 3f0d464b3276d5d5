package notebook

import (
	"context"
	"time"

	"github.com/planbook/planbook/pkg/events"
	"github.com/planbook/planbook/pkg/models"
	"github.com/planbook/planbook/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

// dependencyPollInterval is how often a waiter re-checks a dependency
// owned by another container's loop.
const dependencyPollInterval = 10 * time.Millisecond

// nodeOutcome is what a node execution reports back to the scheduling loop.
// Executions never touch the loop's bookkeeping themselves.
type nodeOutcome struct {
	node      *models.PlanNode
	success   bool
	output    any
	errMsg    string
	cancelled bool
}

// ExecutePlan runs a plan to completion under the given execution context
// and returns the structured summary of the run.
//
// Every failure mode is absorbed into the summary except one: when pending
// nodes have dependencies that can never be satisfied (a cycle or a
// dangling edge), the run aborts with an UnsatisfiableDependencyError.
func (n *Notebook) ExecutePlan(ctx context.Context, plan *models.Plan, ec *ExecutionContext) (*models.ExecutionSummary, error) {
	if ec == nil {
		ec = NewExecutionContext(models.DefaultExecutionOptions())
	}

	opts := ec.normalizedOptions()

	if opts.GlobalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.GlobalTimeout)

		defer cancel()
	}

	ctx, span := otelhelper.StartSpan(ctx, n.tracer, "plan.execute",
		attribute.String(otelhelper.PlanIDKey, plan.ID),
		attribute.String(otelhelper.PlanNameKey, plan.Name),
		attribute.Int(otelhelper.ParallelismKey, opts.MaxParallelism),
	)
	defer span.End()

	logger := n.logger.With("plan_id", plan.ID, "plan_name", plan.Name)
	logger.InfoContext(ctx, "Starting plan execution",
		"nodes", len(plan.Nodes)-1, "max_parallelism", opts.MaxParallelism)

	plan.ResetForRun()
	plan.Status = models.PlanStatusRunning
	startedAt := time.Now().UTC()

	nodes := n.schedulableSet(plan, plan.RootID)

	n.publish(ctx, plan.ID, events.PlanExecutionStarted{
		BaseEvent:  events.NewBaseEvent(events.PlanExecutionStartedEvent, plan.ID),
		PlanName:   plan.Name,
		TotalNodes: len(plan.Nodes) - 1,
	})

	err := n.runScheduler(ctx, plan, nodes, ec, opts)
	if err != nil {
		plan.Status = models.PlanStatusFailed
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Plan execution aborted", "error", err)

		n.publish(ctx, plan.ID, events.PlanExecutionFailed{
			BaseEvent:  events.NewBaseEvent(events.PlanExecutionFailedEvent, plan.ID),
			Status:     string(plan.Status),
			DurationMs: time.Since(startedAt).Milliseconds(),
			Error:      err.Error(),
		})

		return nil, err
	}

	n.finalizePlan(ctx, plan)

	summary := plan.ExecutionSummary()
	summary.StartedAt = startedAt
	summary.Duration = time.Since(startedAt)

	span.SetAttributes(attribute.String(otelhelper.RunStatusKey, string(plan.Status)))
	logger.InfoContext(ctx, "Plan execution finished",
		"status", plan.Status,
		"completed", summary.CompletedNodes,
		"failed", summary.FailedNodes,
		"cancelled", summary.CancelledNodes,
		"duration", summary.Duration)

	n.publishCompletion(ctx, plan, summary)
	n.notifyPlanCompleted(plan.ID, plan.Status)

	return summary, nil
}

// runScheduler is the scheduling loop shared by top-level runs and nested
// subplan runs. nodes is the subset this loop owns; dependency edges may
// point outside it and are resolved against the whole plan.
func (n *Notebook) runScheduler(
	ctx context.Context,
	plan *models.Plan,
	nodes map[string]*models.PlanNode,
	ec *ExecutionContext,
	opts models.ExecutionOptions,
) error {
	executing := make(map[string]struct{}, opts.MaxParallelism)
	outcomes := make(chan nodeOutcome, len(nodes))

	for {
		if ctx.Err() != nil {
			n.cancelPending(ctx, plan, nodes, reasonRunCancelled)

			if len(executing) == 0 {
				return nil
			}

			// Drain in-flight work; started nodes are only interrupted
			// if their own agent or tool call honors the signal.
			n.handleOutcome(ctx, plan, nodes, ec, opts, <-outcomes, executing)

			continue
		}

		ready := n.readyNodes(plan, nodes, executing)

		if len(ready) == 0 {
			if len(executing) > 0 {
				select {
				case outcome := <-outcomes:
					n.handleOutcome(ctx, plan, nodes, ec, opts, outcome, executing)
				case <-ctx.Done():
				}

				continue
			}

			pending := n.pendingNodes(nodes)
			if len(pending) == 0 {
				return nil
			}

			// Nothing ready, nothing running, nodes still pending: a
			// dependency may have ended in a non-completed terminal state
			// (cascade-cancel those and move on), or still be in flight
			// under another container's loop (watch it), or the remaining
			// pending nodes can never run at all.
			blocked, waiting, stuck := n.classifyWaiting(plan, nodes, pending)

			if len(blocked) > 0 {
				for _, node := range blocked {
					n.setNodeStatus(ctx, plan, node, models.NodeStatusCancelled, reasonDepUnsatisfied)
				}

				continue
			}

			if len(waiting) > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(dependencyPollInterval):
				}

				continue
			}

			stuckIDs := make([]string, 0, len(stuck))
			for _, node := range stuck {
				stuckIDs = append(stuckIDs, node.ID)
			}

			return &UnsatisfiableDependencyError{PlanID: plan.ID, NodeIDs: stuckIDs}
		}

		slots := opts.MaxParallelism - len(executing)

		for _, node := range ready {
			if slots <= 0 {
				break
			}

			n.startNode(ctx, plan, node, ec, executing, outcomes)
			slots--
		}

		// Re-evaluate readiness only after an in-flight node finishes or
		// the run is cancelled.
		select {
		case outcome := <-outcomes:
			n.handleOutcome(ctx, plan, nodes, ec, opts, outcome, executing)
		case <-ctx.Done():
		}
	}
}

// startNode marks a node in progress and launches its execution.
func (n *Notebook) startNode(
	ctx context.Context,
	plan *models.Plan,
	node *models.PlanNode,
	ec *ExecutionContext,
	executing map[string]struct{},
	outcomes chan<- nodeOutcome,
) {
	n.setNodeStatus(ctx, plan, node, models.NodeStatusInProgress, "")
	executing[node.ID] = struct{}{}

	go func() {
		outcomes <- n.executeNode(ctx, plan, node, ec)
	}()
}

// handleOutcome feeds one execution result back into node status and the
// loop's bookkeeping. All status mutation for loop-owned nodes happens here
// or in the loop itself.
func (n *Notebook) handleOutcome(
	ctx context.Context,
	plan *models.Plan,
	nodes map[string]*models.PlanNode,
	ec *ExecutionContext,
	opts models.ExecutionOptions,
	outcome nodeOutcome,
	executing map[string]struct{},
) {
	node := outcome.node
	delete(executing, node.ID)

	switch {
	case outcome.cancelled:
		n.setNodeStatus(ctx, plan, node, models.NodeStatusCancelled, reasonRunCancelled)

	case outcome.success:
		node.Output = outcome.output
		node.Error = ""
		n.setNodeStatus(ctx, plan, node, models.NodeStatusCompleted, "")
		n.propagateOutput(ctx, ec, opts, node)

	case opts.EnableRetry && node.RetryCount < node.MaxRetries:
		node.RetryCount++
		node.Error = outcome.errMsg
		// Back into the ready pool on the next iteration; no backoff.
		n.setNodeStatus(ctx, plan, node, models.NodeStatusPending, reasonRetrying)

	default:
		node.Error = outcome.errMsg
		n.setNodeStatus(ctx, plan, node, models.NodeStatusFailed, outcome.errMsg)

		if !opts.ContinueOnError {
			n.cancelPending(ctx, plan, nodes, reasonPreviousFailed)
		}
	}
}

// readyNodes returns pending nodes, not already running, whose every
// dependency is completed. No ordering among them is guaranteed.
func (n *Notebook) readyNodes(
	plan *models.Plan,
	nodes map[string]*models.PlanNode,
	executing map[string]struct{},
) []*models.PlanNode {
	var ready []*models.PlanNode

	for id, node := range nodes {
		if n.nodeStatus(node) != models.NodeStatusPending {
			continue
		}

		if _, running := executing[id]; running {
			continue
		}

		if n.dependenciesSatisfied(plan, node) {
			ready = append(ready, node)
		}
	}

	return ready
}

func (n *Notebook) dependenciesSatisfied(plan *models.Plan, node *models.PlanNode) bool {
	for _, depID := range node.Dependencies {
		dep := plan.FindNode(depID)
		if dep == nil || n.nodeStatus(dep) != models.NodeStatusCompleted {
			return false
		}
	}

	return true
}

// classifyWaiting splits pending nodes three ways: blocked by a dependency
// that terminated without completing (recoverable by cascade-cancel),
// waiting on a dependency owned by another container's loop (re-check once
// that container settles it), and stuck nodes that can never run: a
// dependency id that resolves to nothing, or a dependency that is itself
// stuck pending inside this loop's own set (a cycle).
func (n *Notebook) classifyWaiting(
	plan *models.Plan,
	nodes map[string]*models.PlanNode,
	pending []*models.PlanNode,
) (blocked, waiting, stuck []*models.PlanNode) {
	for _, node := range pending {
		isBlocked := false
		isWaiting := false
		isStuck := false

		for _, depID := range node.Dependencies {
			dep := plan.FindNode(depID)
			if dep == nil {
				isStuck = true

				continue
			}

			switch n.nodeStatus(dep) {
			case models.NodeStatusFailed, models.NodeStatusCancelled:
				isBlocked = true
			case models.NodeStatusCompleted:
			default:
				if _, owned := nodes[depID]; !owned {
					isWaiting = true
				}
			}
		}

		switch {
		case isStuck:
			stuck = append(stuck, node)
		case isBlocked:
			blocked = append(blocked, node)
		case isWaiting:
			waiting = append(waiting, node)
		default:
			// Every dependency is pending inside this loop's own set
			// while nothing can run: this node sits on a dependency
			// cycle.
			stuck = append(stuck, node)
		}
	}

	return blocked, waiting, stuck
}

// cancelPending marks every still-pending node in the subset cancelled.
func (n *Notebook) cancelPending(
	ctx context.Context,
	plan *models.Plan,
	nodes map[string]*models.PlanNode,
	reason string,
) {
	for _, node := range nodes {
		if n.nodeStatus(node) == models.NodeStatusPending {
			n.setNodeStatus(ctx, plan, node, models.NodeStatusCancelled, reason)
		}
	}
}

func (n *Notebook) pendingNodes(nodes map[string]*models.PlanNode) []*models.PlanNode {
	var pending []*models.PlanNode

	for _, node := range nodes {
		if n.nodeStatus(node) == models.NodeStatusPending {
			pending = append(pending, node)
		}
	}

	return pending
}

// schedulableSet collects the nodes a scheduling loop over containerID
// owns: every descendant not buried inside a composite. Composite nodes
// themselves are included; their interiors are executed by the composite's
// own dispatch.
func (n *Notebook) schedulableSet(plan *models.Plan, containerID string) map[string]*models.PlanNode {
	result := make(map[string]*models.PlanNode)

	var walk func(ids []string)

	walk = func(ids []string) {
		for _, id := range ids {
			node := plan.FindNode(id)
			if node == nil {
				continue
			}

			if _, seen := result[id]; seen {
				continue
			}

			result[id] = node

			if !node.IsComposite() {
				walk(node.Children)
			}
		}
	}

	container := plan.FindNode(containerID)
	if container != nil {
		walk(container.Children)
	}

	return result
}

// propagateOutput writes a completed node's output into the shared state
// store when the run asks for it.
func (n *Notebook) propagateOutput(ctx context.Context, ec *ExecutionContext, opts models.ExecutionOptions, node *models.PlanNode) {
	if !opts.PropagateOutputs || ec.State == nil || node.Output == nil {
		return
	}

	if err := ec.State.Set(ctx, "outputs."+node.ID, node.Output); err != nil {
		n.logger.WarnContext(ctx, "Failed to propagate node output",
			"node_id", node.ID, "error", err)
	}
}

// finalizePlan computes the plan-level status from final node statuses.
func (n *Notebook) finalizePlan(ctx context.Context, plan *models.Plan) {
	switch {
	case plan.IsSuccessful():
		plan.Status = models.PlanStatusCompleted
	case n.anyFailed(plan):
		plan.Status = models.PlanStatusFailed
	default:
		plan.Status = models.PlanStatusCancelled
	}

	// The root container mirrors the overall result.
	if root := plan.Root(); root != nil {
		switch plan.Status {
		case models.PlanStatusCompleted:
			root.Status = models.NodeStatusCompleted
		case models.PlanStatusFailed:
			root.Status = models.NodeStatusFailed
		default:
			root.Status = models.NodeStatusCancelled
		}
	}

	now := time.Now().UTC()
	plan.CompletedAt = &now
	plan.UpdatedAt = now
}

func (n *Notebook) anyFailed(plan *models.Plan) bool {
	for id, node := range plan.Nodes {
		if id == plan.RootID {
			continue
		}

		if node.Status == models.NodeStatusFailed {
			return true
		}
	}

	return false
}

// nodeStatus reads a node's status under the shared status lock. Any read
// that can observe a node owned by another container's dispatch goes
// through here.
func (n *Notebook) nodeStatus(node *models.PlanNode) models.NodeStatus {
	n.statusMu.RLock()
	defer n.statusMu.RUnlock()

	return node.Status
}

// setNodeStatus applies a status transition, stamps timestamps, and
// delivers notifications. Observers run before the caller proceeds.
func (n *Notebook) setNodeStatus(ctx context.Context, plan *models.Plan, node *models.PlanNode, status models.NodeStatus, reason string) {
	n.statusMu.Lock()

	old := node.Status
	if old == status {
		n.statusMu.Unlock()

		return
	}

	node.Status = status
	now := time.Now().UTC()

	switch status {
	case models.NodeStatusInProgress:
		node.StartedAt = &now
		node.CompletedAt = nil
	case models.NodeStatusCompleted, models.NodeStatusFailed, models.NodeStatusCancelled:
		node.CompletedAt = &now
	case models.NodeStatusPending:
		node.StartedAt = nil
	}

	n.statusMu.Unlock()

	n.mu.RLock()
	observers := n.observers
	n.mu.RUnlock()

	change := StatusChange{
		PlanID:   plan.ID,
		NodeID:   node.ID,
		NodeName: node.Name,
		From:     old,
		To:       status,
		Reason:   reason,
	}

	for _, observer := range observers {
		observer(change)
	}

	n.publish(ctx, plan.ID, events.NodeStatusChanged{
		BaseEvent: events.NewBaseEvent(events.NodeStatusChangedEvent, plan.ID),
		NodeID:    node.ID,
		NodeName:  node.Name,
		OldStatus: old,
		NewStatus: status,
		Reason:    reason,
	})

	n.logger.DebugContext(ctx, "Node status changed",
		"plan_id", plan.ID, "node_id", node.ID, "node_name", node.Name,
		"from", old, "to", status, "reason", reason)
}

func (n *Notebook) notifyPlanCompleted(planID string, status models.PlanStatus) {
	n.mu.RLock()
	observers := n.completed
	n.mu.RUnlock()

	for _, observer := range observers {
		observer(planID, status)
	}
}

func (n *Notebook) publishCompletion(ctx context.Context, plan *models.Plan, summary *models.ExecutionSummary) {
	base := func(t events.EventType) events.BaseEvent {
		return events.NewBaseEvent(t, plan.ID)
	}

	durationMs := summary.Duration.Milliseconds()

	switch plan.Status {
	case models.PlanStatusCompleted:
		n.publish(ctx, plan.ID, events.PlanExecutionCompleted{
			BaseEvent:      base(events.PlanExecutionCompletedEvent),
			Status:         string(plan.Status),
			DurationMs:     durationMs,
			NodesExecuted:  summary.CompletedNodes,
			FailedNodes:    summary.FailedNodes,
			CancelledNodes: summary.CancelledNodes,
		})
	case models.PlanStatusCancelled:
		n.publish(ctx, plan.ID, events.PlanExecutionCancelled{
			BaseEvent:     base(events.PlanExecutionCancelledEvent),
			Status:        string(plan.Status),
			DurationMs:    durationMs,
			Reason:        reasonRunCancelled,
			NodesExecuted: summary.CompletedNodes,
		})
	default:
		n.publish(ctx, plan.ID, events.PlanExecutionFailed{
			BaseEvent:     base(events.PlanExecutionFailedEvent),
			Status:        string(plan.Status),
			DurationMs:    durationMs,
			Error:         firstNodeError(summary),
			NodesExecuted: summary.CompletedNodes,
		})
	}
}

func firstNodeError(summary *models.ExecutionSummary) string {
	for _, result := range summary.NodeResults {
		if result.Status == models.NodeStatusFailed && result.Error != "" {
			return result.Error
		}
	}

	return ""
}
