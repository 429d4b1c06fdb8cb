package engine

import (
	"context"
	"maps"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/notification"
)

// DryRunStep is the simulated outcome of one plan step.
type DryRunStep struct {
	StepID string          `json:"stepId"`
	Name   string          `json:"name"`
	Type   models.StepType `json:"type"`
	Status string          `json:"status"`
	Result map[string]any  `json:"result,omitempty"`
}

type DryRunResult struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Status  models.InstanceStatus `json:"status"`
	Steps   []DryRunStep          `json:"steps"`
	Error   string                `json:"error,omitempty"`
}

// DryRun walks the workflow against entityData without persisting or
// notifying anything. Approvals are reported PENDING and assumed approved so
// the walk continues. A condition that cannot be evaluated ends the walk with
// Success false; compile errors are returned.
func (e *Engine) DryRun(ctx context.Context, workflow *models.Workflow, entityType, entityID string, entityData map[string]any) (*DryRunResult, error) {
	plan, err := e.compiler.Compile(workflow)
	if err != nil {
		return nil, err
	}

	data := maps.Clone(entityData)
	if data == nil {
		data = map[string]any{}
	}

	instance := &models.WorkflowInstance{
		ID:         "dry-run",
		WorkflowID: workflow.ID,
		EntityType: entityType,
		EntityID:   entityID,
		EntityData: data,
		Plan:       plan,
	}

	result := &DryRunResult{Steps: []DryRunStep{}}
	current := plan.Entry

	for current != "" && current != models.EndStep {
		step, ok := plan.Step(current)
		if !ok {
			break
		}

		out := DryRunStep{StepID: step.ID, Name: step.Name, Type: step.Type, Status: string(models.StepApproved)}
		tag := models.TagDefault

		switch {
		case step.Type == models.StepTypeApproval:
			ids, requireAll := approverConfig(step)
			out.Status = string(models.StepPending)
			out.Result = map[string]any{"requireAllApprovers": requireAll}

			resolved, err := e.resolver.Resolve(ctx, ids)
			if err != nil {
				out.Result["error"] = err.Error()
			} else {
				out.Result["approvers"] = resolved
			}

		case step.Type.IsMessage():
			msg, err := notification.Render(instance, step)
			if err != nil {
				out.Result = map[string]any{"error": err.Error()}
			} else {
				out.Result = map[string]any{"recipients": msg.Recipients, "subject": msg.Subject, "body": msg.Body}
			}

		case step.Type == models.StepTypeDelay:
			if cfg, ok := step.Config.(*models.DelayConfig); ok && cfg != nil {
				out.Result = map[string]any{"delay": cfg.Duration().String()}
			}

		case step.Type.IsBranch(), step.Type.IsLogic():
			var outcome bool

			if step.Type.IsBranch() {
				outcome, err = e.evaluator.Step(step, data)
			} else {
				outcome, err = e.logic(instance, step, map[string]bool{})
			}

			if err != nil {
				out.Status = string(models.StepRejected)
				out.Result = map[string]any{"error": err.Error()}
				result.Steps = append(result.Steps, out)
				result.Status = models.InstanceRejected
				result.Error = SystemCommentPrefix + "condition evaluation failed: " + err.Error()
				result.Message = "Workflow would be rejected"

				return result, nil
			}

			instance.Decisions = append(instance.Decisions, models.Decision{StepID: step.ID, Type: step.Type, Outcome: outcome})
			out.Result = map[string]any{"outcome": outcome}
			tag = outcomeTag(outcome)
		}

		result.Steps = append(result.Steps, out)

		current, ok = plan.Next(step.ID, tag)
		if !ok {
			break
		}
	}

	result.Success = true
	result.Status = models.InstanceCompleted
	result.Message = "Workflow would complete"

	return result, nil
}
