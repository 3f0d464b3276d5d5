package notebook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/planbook/planbook/pkg/eventbus"
	"github.com/planbook/planbook/pkg/events"
	"github.com/planbook/planbook/pkg/models"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// StatusChange describes one node status transition during a run.
type StatusChange struct {
	PlanID   string
	NodeID   string
	NodeName string
	From     models.NodeStatus
	To       models.NodeStatus
	Reason   string
}

// StatusObserver receives node status transitions. Observers run
// synchronously before the scheduling loop proceeds, so they must not
// block.
type StatusObserver func(change StatusChange)

// CompletionObserver receives a notification when a plan run finishes.
type CompletionObserver func(planID string, status models.PlanStatus)

// Notebook owns the plan registry and the execution engine. All plan and
// node mutation during a run goes through the notebook; nodes never mutate
// each other.
type Notebook struct {
	mu        sync.RWMutex
	plans     map[string]*models.Plan
	observers []StatusObserver
	completed []CompletionObserver

	// statusMu guards node status fields during a run. Composite dispatch
	// mutates interior nodes from its own goroutines while scheduling
	// loops read them through dependency edges, so status access crosses
	// goroutines even under the single-writer loop discipline.
	statusMu sync.RWMutex

	logger    *slog.Logger
	tracer    trace.Tracer
	publisher eventbus.EventPublisher
	validate  *validator.Validate
}

// Option configures a Notebook.
type Option func(*Notebook)

// WithLogger sets the notebook logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notebook) { n.logger = logger }
}

// WithPublisher mirrors run events onto an event bus for external consumers.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(n *Notebook) { n.publisher = publisher }
}

// WithTracer wraps plan and node execution in spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(n *Notebook) { n.tracer = tracer }
}

// NewNotebook creates an empty plan registry.
func NewNotebook(opts ...Option) *Notebook {
	n := &Notebook{
		plans:    make(map[string]*models.Plan),
		logger:   slog.Default().With("module", "notebook"),
		tracer:   noop.NewTracerProvider().Tracer("notebook"),
		validate: validator.New(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// SubscribeStatusChanges registers a synchronous node status observer.
func (n *Notebook) SubscribeStatusChanges(observer StatusObserver) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.observers = append(n.observers, observer)
}

// SubscribePlanCompleted registers a synchronous run completion observer.
func (n *Notebook) SubscribePlanCompleted(observer CompletionObserver) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.completed = append(n.completed, observer)
}

// CreatePlan allocates a plan with a sequential root node and registers it.
func (n *Notebook) CreatePlan(name, description string) (*models.Plan, error) {
	now := time.Now().UTC()

	rootID := uuid.New().String()

	plan := &models.Plan{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Status:      models.PlanStatusDraft,
		RootID:      rootID,
		Nodes: map[string]*models.PlanNode{
			rootID: {
				ID:     rootID,
				Name:   name,
				Type:   models.NodeTypeSequential,
				Status: models.NodeStatusPending,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := n.validate.Struct(plan); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	n.mu.Lock()
	n.plans[plan.ID] = plan
	n.mu.Unlock()

	n.publish(context.Background(), plan.ID, events.PlanCreated{
		BaseEvent: events.NewBaseEvent(events.PlanCreatedEvent, plan.ID),
		PlanName:  plan.Name,
	})

	return plan, nil
}

// RestorePlan registers an already-built plan, typically loaded from
// persistence at startup. It emits no events.
func (n *Notebook) RestorePlan(plan *models.Plan) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.plans[plan.ID] = plan
}

// GetPlan returns a registered plan by id.
func (n *Notebook) GetPlan(id string) (*models.Plan, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	plan, ok := n.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}

	return plan, nil
}

// GetAllPlans returns every registered plan.
func (n *Notebook) GetAllPlans() []*models.Plan {
	n.mu.RLock()
	defer n.mu.RUnlock()

	plans := make([]*models.Plan, 0, len(n.plans))
	for _, plan := range n.plans {
		plans = append(plans, plan)
	}

	return plans
}

// DeletePlan removes a plan from the registry. It does not cancel an
// in-flight run of that plan; the run keeps its own reference.
func (n *Notebook) DeletePlan(id string) bool {
	n.mu.Lock()
	_, ok := n.plans[id]
	delete(n.plans, id)
	n.mu.Unlock()

	if ok {
		n.publish(context.Background(), id, events.PlanDeleted{
			BaseEvent: events.NewBaseEvent(events.PlanDeletedEvent, id),
		})
	}

	return ok
}

// TaskSpec carries the optional execution parameters of a new task node.
type TaskSpec struct {
	Name          string `validate:"required,min=1"`
	Description   string
	AssignedAgent string
	ToolName      string
	Inputs        map[string]any
	MaxRetries    int `validate:"min=0"`
}

// AddTask appends a task node under parentID.
func (n *Notebook) AddTask(plan *models.Plan, parentID string, spec TaskSpec) (*models.PlanNode, error) {
	if err := n.validate.Struct(spec); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	node := &models.PlanNode{
		ID:            uuid.New().String(),
		Name:          spec.Name,
		Description:   spec.Description,
		Type:          models.NodeTypeTask,
		AssignedAgent: spec.AssignedAgent,
		ToolName:      spec.ToolName,
		Inputs:        spec.Inputs,
		MaxRetries:    spec.MaxRetries,
		Status:        models.NodeStatusPending,
	}

	if err := n.attach(plan, parentID, node); err != nil {
		return nil, err
	}

	return node, nil
}

// AddSubPlan appends a subplan node under parentID. Descendants added under
// it are scheduled as a nested run when the node executes.
func (n *Notebook) AddSubPlan(plan *models.Plan, parentID, name, description string) (*models.PlanNode, error) {
	node := &models.PlanNode{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Type:        models.NodeTypeSubPlan,
		Status:      models.NodeStatusPending,
	}

	if err := n.attach(plan, parentID, node); err != nil {
		return nil, err
	}

	return node, nil
}

// AddGroup appends an explicit sequential or parallel composite under
// parentID. Its children execute in declared order (sequential) or
// concurrently (parallel).
func (n *Notebook) AddGroup(plan *models.Plan, parentID string, nodeType models.NodeType, name string) (*models.PlanNode, error) {
	if nodeType != models.NodeTypeSequential && nodeType != models.NodeTypeParallel {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNodeType, nodeType)
	}

	node := &models.PlanNode{
		ID:     uuid.New().String(),
		Name:   name,
		Type:   nodeType,
		Status: models.NodeStatusPending,
	}

	if err := n.attach(plan, parentID, node); err != nil {
		return nil, err
	}

	return node, nil
}

// AddDependency records that nodeID must wait for dependsOnID to complete.
// Both endpoints must already exist in the plan; adding the same edge twice
// is a no-op.
func (n *Notebook) AddDependency(plan *models.Plan, nodeID, dependsOnID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	node := plan.FindNode(nodeID)
	if node == nil {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	if plan.FindNode(dependsOnID) == nil {
		return fmt.Errorf("%w: %s", ErrDependencyNotFound, dependsOnID)
	}

	if node.DependsOn(dependsOnID) {
		return nil
	}

	node.Dependencies = append(node.Dependencies, dependsOnID)
	plan.UpdatedAt = time.Now().UTC()

	return nil
}

func (n *Notebook) attach(plan *models.Plan, parentID string, node *models.PlanNode) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	parent := plan.FindNode(parentID)
	if parent == nil {
		return fmt.Errorf("%w: %s", ErrParentNotFound, parentID)
	}

	node.ParentID = parentID
	parent.Children = append(parent.Children, node.ID)
	plan.Nodes[node.ID] = node
	plan.UpdatedAt = time.Now().UTC()

	return nil
}

func (n *Notebook) publish(ctx context.Context, key string, event eventbus.Event) {
	if n.publisher == nil {
		return
	}

	if err := n.publisher.Publish(ctx, key, event); err != nil {
		n.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
