package registry

import (
	"github.com/cflux/flow/pkg/nodes/approval"
	"github.com/cflux/flow/pkg/nodes/conditional"
	"github.com/cflux/flow/pkg/nodes/delay"
	"github.com/cflux/flow/pkg/nodes/logic"
	"github.com/cflux/flow/pkg/nodes/message"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes() {
	r.RegisterNode(approval.NewApprovalNodeFactory())

	r.RegisterNode(message.NewEmailNodeFactory())
	r.RegisterNode(message.NewNotificationNodeFactory())

	r.RegisterNode(delay.NewDelayNodeFactory())

	r.RegisterNode(conditional.NewConditionalNodeFactory())
	r.RegisterNode(conditional.NewValueConditionNodeFactory())
	r.RegisterNode(conditional.NewDateConditionNodeFactory())

	r.RegisterNode(logic.NewLogicNodeFactory())
}
