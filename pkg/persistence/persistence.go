// Package persistence provides the data storage abstraction layer for plans.
package persistence

import (
	"context"

	"github.com/planbook/planbook/pkg/models"
)

type Persistence interface {
	Plans(ctx context.Context) ([]*models.Plan, error)
	SavePlan(ctx context.Context, plan *models.Plan) error
	PlanByID(ctx context.Context, id string) (*models.Plan, error)
	DeletePlan(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
