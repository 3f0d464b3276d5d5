// Package events defines event types for plan lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/planbook/planbook/pkg/models"
)

type EventType string

// Kafka topics.
const Topic = "planbook.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Plan authoring events.
	PlanCreatedEvent EventType = "plan.created"
	PlanDeletedEvent EventType = "plan.deleted"

	// Node-level run events.
	NodeStatusChangedEvent EventType = "plan.node.status_changed"

	// Plan run lifecycle events.
	PlanExecutionStartedEvent   EventType = "plan.execution.started"
	PlanExecutionCompletedEvent EventType = "plan.execution.completed"
	PlanExecutionFailedEvent    EventType = "plan.execution.failed"
	PlanExecutionCancelledEvent EventType = "plan.execution.cancelled"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	PlanID    string         `json:"plan_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, planID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		PlanID:    planID,
		Metadata:  make(map[string]any),
	}
}

type PlanCreated struct {
	BaseEvent

	PlanName string `json:"plan_name"`
}

func (e PlanCreated) GetType() EventType {
	return PlanCreatedEvent
}

type PlanDeleted struct {
	BaseEvent
}

func (e PlanDeleted) GetType() EventType {
	return PlanDeletedEvent
}

// NodeStatusChanged is published on every node status transition. Delivery
// to in-process observers is synchronous; the bus copy is for external
// consumers.
type NodeStatusChanged struct {
	BaseEvent

	NodeID    string            `json:"node_id"`
	NodeName  string            `json:"node_name"`
	OldStatus models.NodeStatus `json:"old_status"`
	NewStatus models.NodeStatus `json:"new_status"`
	Reason    string            `json:"reason,omitempty"`
}

func (e NodeStatusChanged) GetType() EventType {
	return NodeStatusChangedEvent
}

type PlanExecutionStarted struct {
	BaseEvent

	PlanName   string `json:"plan_name"`
	TotalNodes int    `json:"total_nodes"`
}

func (e PlanExecutionStarted) GetType() EventType {
	return PlanExecutionStartedEvent
}

type PlanExecutionCompleted struct {
	BaseEvent

	Status         string `json:"status"`
	DurationMs     int64  `json:"duration_ms"`
	NodesExecuted  int    `json:"nodes_executed"`
	FailedNodes    int    `json:"failed_nodes"`
	CancelledNodes int    `json:"cancelled_nodes"`
}

func (e PlanExecutionCompleted) GetType() EventType {
	return PlanExecutionCompletedEvent
}

type PlanExecutionFailed struct {
	BaseEvent

	Status        string `json:"status"`
	DurationMs    int64  `json:"duration_ms"`
	Error         string `json:"error"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e PlanExecutionFailed) GetType() EventType {
	return PlanExecutionFailedEvent
}

type PlanExecutionCancelled struct {
	BaseEvent

	Status        string `json:"status"`
	DurationMs    int64  `json:"duration_ms"`
	Reason        string `json:"reason"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e PlanExecutionCancelled) GetType() EventType {
	return PlanExecutionCancelledEvent
}
