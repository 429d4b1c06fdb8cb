// Package events defines the events published on the bus: business actions
// fired into the engine and the lifecycle of workflow instances.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topics.
const (
	Topic        = "flow.events"  // instance lifecycle and notifications
	ActionsTopic = "flow.actions" // fired business actions awaiting dispatch
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ActionFiredEvent EventType = "action.fired"

	InstanceStartedEvent   EventType = "instance.started"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceRejectedEvent  EventType = "instance.rejected"
	InstanceCancelledEvent EventType = "instance.cancelled"

	ApprovalRequestedEvent     EventType = "approval.requested"
	NotificationRequestedEvent EventType = "notification.requested"
)

// TopicFor returns the topic an event type is published on.
func TopicFor(eventType EventType) string {
	if eventType == ActionFiredEvent {
		return ActionsTopic
	}

	return Topic
}

// New returns an empty event of the given type for decoding.
func New(eventType EventType) (any, error) {
	switch eventType {
	case ActionFiredEvent:
		return &ActionFired{}, nil
	case InstanceStartedEvent, InstanceCompletedEvent, InstanceRejectedEvent, InstanceCancelledEvent:
		return &InstanceEvent{}, nil
	case ApprovalRequestedEvent:
		return &ApprovalRequested{}, nil
	case NotificationRequestedEvent:
		return &NotificationRequested{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// ActionFired carries a business action to the dispatcher, which matches it
// against the trigger registry and starts the matching workflows.
type ActionFired struct {
	BaseEvent

	ActionKey  string         `json:"action_key"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	EntityData map[string]any `json:"entity_data"`
	UserID     string         `json:"user_id,omitempty"`
}

func (a ActionFired) GetType() EventType {
	return ActionFiredEvent
}

func NewActionFired(actionKey, entityType, entityID string, entityData map[string]any, userID string) *ActionFired {
	return &ActionFired{
		BaseEvent:  NewBaseEvent(ActionFiredEvent, ""),
		ActionKey:  actionKey,
		EntityType: entityType,
		EntityID:   entityID,
		EntityData: entityData,
		UserID:     userID,
	}
}

// InstanceEvent reports a lifecycle transition of a workflow instance.
type InstanceEvent struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Status     string `json:"status"`
	Comment    string `json:"comment,omitempty"`
}

func (i InstanceEvent) GetType() EventType {
	return i.Type
}

func NewInstanceEvent(eventType EventType, workflowID, instanceID, entityType, entityID, status, comment string) *InstanceEvent {
	return &InstanceEvent{
		BaseEvent:  NewBaseEvent(eventType, workflowID),
		InstanceID: instanceID,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     status,
		Comment:    comment,
	}
}

// ApprovalRequested is published when an approval step starts waiting.
type ApprovalRequested struct {
	BaseEvent

	InstanceID     string   `json:"instance_id"`
	InstanceStepID string   `json:"instance_step_id"`
	StepName       string   `json:"step_name"`
	ApproverIDs    []string `json:"approver_ids"`
	RequireAll     bool     `json:"require_all"`
}

func (a ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

// NotificationRequested hands a rendered message to an external delivery service.
type NotificationRequested struct {
	BaseEvent

	InstanceID string   `json:"instance_id"`
	StepID     string   `json:"step_id"`
	Channel    string   `json:"channel"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject,omitempty"`
	Body       string   `json:"body"`
}

func (n NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}
