// Package file provides file-based persistence for plans.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/planbook/planbook/pkg/models"
	"github.com/planbook/planbook/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the
// file system. Each plan is stored as one JSON document under
// <root>/plans/<id>.json.
type Persistence struct {
	root string
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Plans returns all stored plans, newest first.
func (fp *Persistence) Plans(ctx context.Context) ([]*models.Plan, error) {
	root := os.DirFS(fp.plansDir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list plan files: %w", err)
	}

	plans := make([]*models.Plan, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		planID := file[:len(file)-5] // Remove .json extension

		plan, err := fp.PlanByID(ctx, planID)
		if err != nil {
			if persistence.IsPlanNotFound(err) {
				continue
			}

			return nil, fmt.Errorf("failed to load plan %s: %w", planID, err)
		}

		plans = append(plans, plan)
	}

	sortPlansByCreatedAtDesc(plans)

	return plans, nil
}

// PlanByID retrieves a plan by its ID from the file system.
func (fp *Persistence) PlanByID(_ context.Context, id string) (*models.Plan, error) {
	filePath := filepath.Clean(path.Join(fp.plansDir(), id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewPlanError("GetByID", id, persistence.ErrPlanNotFound)
		}

		return nil, fmt.Errorf("failed to fetch plan %s: %w", id, err)
	}

	var plan models.Plan

	err = json.Unmarshal(body, &plan)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan %s: %w", id, err)
	}

	return &plan, nil
}

// SavePlan saves a plan to the file system.
func (fp *Persistence) SavePlan(_ context.Context, plan *models.Plan) error {
	err := os.MkdirAll(fp.plansDir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create plans directory: %w", err)
	}

	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}

	plan.UpdatedAt = now

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan %s: %w", plan.ID, err)
	}

	filePath := path.Join(fp.plansDir(), plan.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// DeletePlan removes a plan by its ID. Deleting a plan that does not exist is a no-op.
func (fp *Persistence) DeletePlan(_ context.Context, id string) error {
	filePath := path.Join(fp.plansDir(), id+".json")

	err := os.Remove(filePath)

	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete plan %s: %w", id, err)
	}

	return nil
}

func (fp *Persistence) plansDir() string {
	return path.Join(fp.root, "plans")
}

func sortPlansByCreatedAtDesc(plans []*models.Plan) {
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].CreatedAt.After(plans[j].CreatedAt)
	})
}
