package web

import (
	"strings"

	"github.com/cflux/flow/pkg/services"
	"github.com/gofiber/fiber/v3"
)

// UserIDHeader carries the caller of my-approvals.
const UserIDHeader = "X-User-ID"

func (h *APIHandlers) GetInvoiceInstances(c fiber.Ctx) error {
	instances, err := h.instanceService.ByInvoice(c.Context(), c.Params("invoiceId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instances)
}

func (h *APIHandlers) GetEntityInstances(c fiber.Ctx) error {
	instances, err := h.instanceService.ByEntity(c.Context(), c.Params("entityType"), c.Params("entityId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instances)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	instance, err := h.instanceService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	var req CancelRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	instance, err := h.instanceService.Cancel(c.Context(), c.Params("id"), req.Comment)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) ApproveStep(c fiber.Ctx) error {
	var req ApproveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.instanceService.Approve(c.Context(), c.Params("id"), req.UserID, req.Comment)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) RejectStep(c fiber.Ctx) error {
	var req RejectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.instanceService.Reject(c.Context(), c.Params("id"), req.UserID, req.Comment)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) CheckInvoiceApproval(c fiber.Ctx) error {
	status, err := h.instanceService.CheckApproval(c.Context(), services.InvoiceEntity, c.Params("invoiceId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) GetMyApprovals(c fiber.Ctx) error {
	userID := strings.TrimSpace(c.Get(UserIDHeader))
	if userID == "" {
		userID = c.Query("userId")
	}

	pending, err := h.instanceService.MyApprovals(c.Context(), userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(pending)
}

// TestWorkflow dry-runs a workflow. A walk that fails on a condition answers
// 422 with the report.
func (h *APIHandlers) TestWorkflow(c fiber.Ctx) error {
	var req services.TestRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := h.instanceService.Test(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !result.Success {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(result)
	}

	return c.JSON(result)
}
