package web

import (
	"strconv"

	"github.com/cflux/flow/pkg/actionbus"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	actions, err := h.actionService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(actions)
}

func (h *APIHandlers) GetAction(c fiber.Ctx) error {
	action, err := h.actionService.Get(c.Context(), c.Params("key"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(action)
}

func (h *APIHandlers) CreateAction(c fiber.Ctx) error {
	var req ActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.actionService.Create(c.Context(), req.Action())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdateAction replaces an action. The key in the path wins over the body.
func (h *APIHandlers) UpdateAction(c fiber.Ctx) error {
	key := c.Params("key")

	var req ActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req.ActionKey = key

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.actionService.Update(c.Context(), key, req.Action())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteAction(c fiber.Ctx) error {
	if err := h.actionService.Delete(c.Context(), c.Params("key")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TriggerAction fires an action. A queued dispatch answers 202.
func (h *APIHandlers) TriggerAction(c fiber.Ctx) error {
	var req TriggerActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.actionService.Trigger(c.Context(), actionbus.Request{
		ActionKey:  c.Params("key"),
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		EntityData: req.EntityData,
		UserID:     req.UserID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	if result.Queued {
		return c.Status(fiber.StatusAccepted).JSON(result)
	}

	return c.JSON(result)
}

func (h *APIHandlers) TestAction(c fiber.Ctx) error {
	var req TestActionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := h.actionService.Test(c.Context(), c.Params("key"), req.EntityData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetActionLogs(c fiber.Ctx) error {
	query := persistence.LogQuery{ActionKey: c.Query("actionKey")}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return badRequest(c, "Invalid query parameters: limit must be a non-negative integer")
		}

		query.Limit = limit
	}

	logs, err := h.actionService.Logs(c.Context(), query)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(logs)
}

func (h *APIHandlers) GetActionStatistics(c fiber.Ctx) error {
	stats, err := h.actionService.Statistics(c.Context(), c.Query("actionKey"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}
