package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/planbook/planbook/pkg/models"
	"github.com/planbook/planbook/pkg/persistence"
)

// PlanRepository handles plan-related database operations.
type PlanRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPlanRepository creates a new plan repository.
func NewPlanRepository(db *sql.DB, logger *slog.Logger) *PlanRepository {
	return &PlanRepository{db: db, logger: logger}
}

// GetAll returns all plans from the database, newest first.
func (r *PlanRepository) GetAll(ctx context.Context) ([]*models.Plan, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , status
		  , root_id
		  , created_at
		  , updated_at
		  , completed_at
		FROM plans
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}

	defer func(ctx context.Context, r *PlanRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	plans := make([]*models.Plan, 0)

	for rows.Next() {
		plan, err := r.scanPlanBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}

		err = r.loadPlanNodes(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("failed to load plan nodes: %w", err)
		}

		plans = append(plans, plan)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}

	return plans, nil
}

// GetByID returns a plan and its nodes by plan ID.
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*models.Plan, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , status
		  , root_id
		  , created_at
		  , updated_at
		  , completed_at
		FROM plans
		WHERE id = $1 AND deleted_at IS NULL
	`

	row := r.db.QueryRowContext(ctx, query, id)

	plan, err := r.scanPlanBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewPlanError("GetByID", id, persistence.ErrPlanNotFound)
		}

		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}

	if err := r.loadPlanNodes(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to load plan nodes: %w", err)
	}

	return plan, nil
}

// Save upserts a plan and replaces its node set in one transaction.
func (r *PlanRepository) Save(ctx context.Context, plan *models.Plan) error {
	now := time.Now().UTC()

	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}

	plan.UpdatedAt = now

	if plan.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate plan ID: %w", err)
		}

		plan.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	planQuery := `
		INSERT INTO plans (id, name, description, status, root_id, created_at, updated_at, completed_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			root_id = EXCLUDED.root_id,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at,
			deleted_at = NULL
	`

	_, err = tx.ExecContext(ctx, planQuery,
		plan.ID,
		plan.Name,
		plan.Description,
		plan.Status,
		plan.RootID,
		plan.CreatedAt,
		plan.UpdatedAt,
		plan.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save plan base: %w", err)
	}

	// Replace the node set wholesale on every save
	_, err = tx.ExecContext(ctx, "DELETE FROM plan_nodes WHERE plan_id = $1", plan.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	for _, node := range plan.Nodes {
		err = r.insertNode(ctx, tx, plan.ID, node)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete soft deletes a plan by setting the deleted_at timestamp.
func (r *PlanRepository) Delete(ctx context.Context, id string) error {
	query := "UPDATE plans SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL"

	_, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete plan %s: %w", id, err)
	}

	return nil
}

func (r *PlanRepository) insertNode(ctx context.Context, tx *sql.Tx, planID string, node *models.PlanNode) error {
	childrenJSON, err := json.Marshal(stringList(node.Children))
	if err != nil {
		return fmt.Errorf("failed to marshal children: %w", err)
	}

	dependenciesJSON, err := json.Marshal(stringList(node.Dependencies))
	if err != nil {
		return fmt.Errorf("failed to marshal dependencies: %w", err)
	}

	inputsJSON, err := json.Marshal(node.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}

	var outputJSON []byte
	if node.Output != nil {
		outputJSON, err = json.Marshal(node.Output)
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
	}

	nodeQuery := `
		INSERT INTO plan_nodes (plan_id, id, name, description, node_type, parent_id,
			children, dependencies, assigned_agent, tool_name, inputs,
			status, output, error_message, retry_count, max_retries, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = tx.ExecContext(ctx, nodeQuery,
		planID,
		node.ID,
		node.Name,
		node.Description,
		node.Type,
		node.ParentID,
		childrenJSON,
		dependenciesJSON,
		node.AssignedAgent,
		node.ToolName,
		inputsJSON,
		node.Status,
		outputJSON,
		node.Error,
		node.RetryCount,
		node.MaxRetries,
		node.StartedAt,
		node.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}

	return nil
}

func (r *PlanRepository) loadPlanNodes(ctx context.Context, plan *models.Plan) error {
	query := `
		SELECT
			id
		  , name
		  , description
		  , node_type
		  , parent_id
		  , children
		  , dependencies
		  , assigned_agent
		  , tool_name
		  , inputs
		  , status
		  , output
		  , error_message
		  , retry_count
		  , max_retries
		  , started_at
		  , completed_at
		FROM plan_nodes
		WHERE plan_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, plan.ID)
	if err != nil {
		return fmt.Errorf("failed to query plan nodes: %w", err)
	}

	defer func(ctx context.Context, r *PlanRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	plan.Nodes = make(map[string]*models.PlanNode)

	for rows.Next() {
		node, err := r.scanNode(rows)
		if err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		plan.Nodes[node.ID] = node
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating plan nodes: %w", err)
	}

	return nil
}

func (r *PlanRepository) scanPlanBase(row interface{ Scan(...any) error }) (*models.Plan, error) {
	var plan models.Plan

	err := row.Scan(
		&plan.ID,
		&plan.Name,
		&plan.Description,
		&plan.Status,
		&plan.RootID,
		&plan.CreatedAt,
		&plan.UpdatedAt,
		&plan.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &plan, nil
}

func (r *PlanRepository) scanNode(row interface{ Scan(...any) error }) (*models.PlanNode, error) {
	var (
		node             models.PlanNode
		parentID         sql.NullString
		assignedAgent    sql.NullString
		toolName         sql.NullString
		errorMessage     sql.NullString
		childrenJSON     []byte
		dependenciesJSON []byte
		inputsJSON       []byte
		outputJSON       []byte
	)

	err := row.Scan(
		&node.ID,
		&node.Name,
		&node.Description,
		&node.Type,
		&parentID,
		&childrenJSON,
		&dependenciesJSON,
		&assignedAgent,
		&toolName,
		&inputsJSON,
		&node.Status,
		&outputJSON,
		&errorMessage,
		&node.RetryCount,
		&node.MaxRetries,
		&node.StartedAt,
		&node.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	node.ParentID = parentID.String
	node.AssignedAgent = assignedAgent.String
	node.ToolName = toolName.String
	node.Error = errorMessage.String

	if err := json.Unmarshal(childrenJSON, &node.Children); err != nil {
		return nil, fmt.Errorf("failed to unmarshal children: %w", err)
	}

	if err := json.Unmarshal(dependenciesJSON, &node.Dependencies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dependencies: %w", err)
	}

	if len(inputsJSON) > 0 {
		if err := json.Unmarshal(inputsJSON, &node.Inputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
		}
	}

	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &node.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}

	return &node, nil
}

// stringList normalizes a nil slice to an empty one so it marshals as [].
func stringList(values []string) []string {
	if values == nil {
		return []string{}
	}

	return values
}
