package persistence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanError_Wrapping(t *testing.T) {
	err := NewPlanError("GetByID", "plan-1", ErrPlanNotFound)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GetByID")
	assert.Contains(t, err.Error(), "plan-1")
	assert.True(t, errors.Is(err, ErrPlanNotFound))
	assert.True(t, IsPlanNotFound(err))
}

func TestPlanError_WithMessage(t *testing.T) {
	err := &PlanError{
		Op:      "Save",
		PlanID:  "plan-2",
		Err:     ErrInvalidPlanStatus,
		Message: "status transition not allowed",
	}

	assert.Contains(t, err.Error(), "status transition not allowed")
	assert.True(t, errors.Is(err, ErrInvalidPlanStatus))
}

func TestIsPlanNotFound_OtherError(t *testing.T) {
	assert.False(t, IsPlanNotFound(errors.New("boom")))
	assert.False(t, IsNodeNotFound(ErrPlanNotFound))
}
