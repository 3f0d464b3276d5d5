// Package postgresql provides PostgreSQL persistence for plans.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/planbook/planbook/pkg/models"
	"github.com/planbook/planbook/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db       *sql.DB
	logger   *slog.Logger
	planRepo *PlanRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	planRepo := NewPlanRepository(database, logger)

	postgres := &Persistence{
		db:       database,
		logger:   logger,
		planRepo: planRepo,
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Plans returns all plans from the database.
func (p *Persistence) Plans(ctx context.Context) ([]*models.Plan, error) {
	return p.planRepo.GetAll(ctx)
}

// PlanByID returns a plan by its ID.
func (p *Persistence) PlanByID(ctx context.Context, id string) (*models.Plan, error) {
	return p.planRepo.GetByID(ctx, id)
}

// SavePlan saves a plan to the database.
func (p *Persistence) SavePlan(ctx context.Context, plan *models.Plan) error {
	return p.planRepo.Save(ctx, plan)
}

// DeletePlan soft deletes a plan by setting the deleted_at timestamp.
func (p *Persistence) DeletePlan(ctx context.Context, id string) error {
	return p.planRepo.Delete(ctx, id)
}
