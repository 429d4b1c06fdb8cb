package models

import (
	"slices"
	"time"
)

type InstanceStatus string

const (
	InstancePending    InstanceStatus = "PENDING"
	InstanceInProgress InstanceStatus = "IN_PROGRESS"
	InstanceCompleted  InstanceStatus = "COMPLETED"
	InstanceRejected   InstanceStatus = "REJECTED"
	InstanceCancelled  InstanceStatus = "CANCELLED"
)

// Terminal reports whether no further transition may leave the status.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceCompleted || s == InstanceRejected || s == InstanceCancelled
}

// WorkflowInstance is one execution of a workflow against one business entity.
type WorkflowInstance struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflowId"`
	TriggerID     string         `json:"triggerId,omitempty"`
	EntityType    string         `json:"entityType"`
	EntityID      string         `json:"entityId"`
	EntityData    map[string]any `json:"entityData"`
	Status        InstanceStatus `json:"status"`
	CurrentStepID *string        `json:"currentStepId"`
	Plan          *Plan          `json:"plan,omitempty"`
	Decisions     []Decision     `json:"decisions"`
	DueAt         *time.Time     `json:"dueAt,omitempty"`
	Comment       string         `json:"comment,omitempty"`
	StartedAt     time.Time      `json:"startedAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
	Version       int            `json:"version"`
}

// Decision records the outcome of a condition or logic step for audit.
type Decision struct {
	StepID  string    `json:"stepId"`
	Type    StepType  `json:"type"`
	Outcome bool      `json:"outcome"`
	At      time.Time `json:"at"`
}

// Decision returns the recorded outcome of a step, if any.
func (i *WorkflowInstance) Decision(stepID string) (bool, bool) {
	for idx := len(i.Decisions) - 1; idx >= 0; idx-- {
		if i.Decisions[idx].StepID == stepID {
			return i.Decisions[idx].Outcome, true
		}
	}

	return false, false
}

type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepApproved StepStatus = "APPROVED"
	StepRejected StepStatus = "REJECTED"
	StepSkipped  StepStatus = "SKIPPED"
)

func (s StepStatus) Terminal() bool {
	return s != StepPending
}

// WorkflowInstanceStep is a step actually visited by an instance. Sequence is
// its 1-based position among the steps of the instance.
type WorkflowInstanceStep struct {
	ID                  string         `json:"id"`
	InstanceID          string         `json:"instanceId"`
	StepID              string         `json:"stepId"`
	StepName            string         `json:"stepName"`
	StepType            StepType       `json:"stepType"`
	Sequence            int            `json:"sequence"`
	Status              StepStatus     `json:"status"`
	ApproverUserIDs     []string       `json:"approverUserIds"`
	RequireAllApprovers bool           `json:"requireAllApprovers"`
	Approvals           []Approval     `json:"approvals"`
	ApprovedByID        *string        `json:"approvedById,omitempty"`
	ApprovedAt          *time.Time     `json:"approvedAt,omitempty"`
	Comment             string         `json:"comment,omitempty"`
	Result              map[string]any `json:"result,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
	Version             int            `json:"version"`
}

// Approval is one approver's recorded consent.
type Approval struct {
	UserID  string    `json:"userId"`
	Comment string    `json:"comment,omitempty"`
	At      time.Time `json:"at"`
}

// IsApprover reports whether the user is in the step's approver set.
func (s *WorkflowInstanceStep) IsApprover(userID string) bool {
	return slices.Contains(s.ApproverUserIDs, userID)
}

// HasApproved reports whether the user already recorded an approval.
func (s *WorkflowInstanceStep) HasApproved(userID string) bool {
	for _, a := range s.Approvals {
		if a.UserID == userID {
			return true
		}
	}

	return false
}

// QuorumMet reports whether the recorded approvals satisfy the step's quorum.
// ANY needs one approval; ALL needs every distinct listed approver.
func (s *WorkflowInstanceStep) QuorumMet() bool {
	if !s.RequireAllApprovers {
		return len(s.Approvals) > 0
	}

	for _, approver := range s.ApproverUserIDs {
		if !s.HasApproved(approver) {
			return false
		}
	}

	return len(s.ApproverUserIDs) > 0
}
