package web

import "github.com/gofiber/fiber/v3"

// Register mounts every API route on r. Static segments are registered before
// the parameter routes they would otherwise collide with.
func (h *APIHandlers) Register(r fiber.Router) {
	r.Get("/health", h.HealthCheck)
	r.Get("/node-types", h.GetNodeTypes)

	w := r.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/my-approvals", h.GetMyApprovals)

	// Template links:
	w.Post("/template-links", h.LinkTemplate)
	w.Delete("/template-links/:templateId/:workflowId", h.UnlinkTemplate)
	w.Get("/templates/:templateId", h.GetTemplateWorkflows)

	// Instances and approvals:
	w.Get("/invoices/:invoiceId/instances", h.GetInvoiceInstances)
	w.Get("/invoices/:invoiceId/check-approval", h.CheckInvoiceApproval)
	w.Get("/entities/:entityType/:entityId/instances", h.GetEntityInstances)
	w.Get("/instances/:id", h.GetInstance)
	w.Post("/instances/:id/cancel", h.CancelInstance)
	w.Post("/instances/steps/:id/approve", h.ApproveStep)
	w.Post("/instances/steps/:id/reject", h.RejectStep)

	// Manual steps:
	w.Put("/steps/:id", h.UpdateWorkflowStep)
	w.Delete("/steps/:id", h.DeleteWorkflowStep)

	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/steps", h.AddWorkflowStep)
	w.Post("/:id/test", h.TestWorkflow)
	w.Post("/:id/activate", h.ActivateWorkflow)
	w.Post("/:id/deactivate", h.DeactivateWorkflow)

	a := r.Group("/actions")
	a.Get("/", h.GetActions)
	a.Post("/", h.CreateAction)
	a.Get("/logs", h.GetActionLogs)
	a.Get("/logs/statistics", h.GetActionStatistics)
	a.Get("/:key", h.GetAction)
	a.Put("/:key", h.UpdateAction)
	a.Delete("/:key", h.DeleteAction)
	a.Post("/:key/trigger", h.TriggerAction)
	a.Post("/:key/test", h.TestAction)

	t := r.Group("/triggers")
	t.Get("/", h.GetTriggers)
	t.Post("/", h.CreateTrigger)
	t.Get("/:id", h.GetTrigger)
	t.Put("/:id", h.UpdateTrigger)
	t.Delete("/:id", h.DeleteTrigger)
	t.Post("/:id/toggle", h.ToggleTrigger)
}
