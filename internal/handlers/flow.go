package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/foxxcyber/rappi-flow/internal/database"
	"github.com/foxxcyber/rappi-flow/internal/flow"
	"github.com/foxxcyber/rappi-flow/internal/middleware"
)

type callbackRequest struct {
	Data          string `json:"data"`
	RestaurantURL string `json:"restaurantUrl"`
}

// conversationKey scopes a chat conversation to the authenticated bot client
func conversationKey(c *fiber.Ctx) (string, bool) {
	conversation := strings.TrimSpace(c.Params("conversation"))
	if conversation == "" || len(conversation) > 96 {
		return "", false
	}
	// params point into the request buffer, and the key outlives the request in the lock map
	return utils.CopyString(middleware.GetClientID(c) + ":" + conversation), true
}

func (h *Handler) flowOptions(restaurantURL string) flow.Options {
	return flow.Options{
		RestaurantURL:        restaurantURL,
		DefaultRestaurantURL: h.cfg.DefaultRestaurantURL,
		LiveOrdersEnabled:    h.cfg.LiveOrderEnabled,
		PageSize:             h.cfg.MenuPageSize,
		SessionFile:          h.cfg.SessionFile,
	}
}

// FlowCallback runs one callback token of a chat conversation
func (h *Handler) FlowCallback(c *fiber.Ctx) error {
	key, ok := conversationKey(c)
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid conversation id")
	}

	var req callbackRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Data) == "" {
		return Error(c, fiber.StatusBadRequest, "data is required")
	}

	unlock := h.lockConversation(key)
	defer unlock()

	store := database.NewConversationStore(h.deps.Flows, key)
	resp, err := h.controller.Handle(c.Context(), store, req.Data, h.flowOptions(req.RestaurantURL))
	if err != nil {
		return fail(c, err, "failed to handle callback")
	}

	return Success(c, resp)
}

// GetFlowState returns the normalized state of a conversation
func (h *Handler) GetFlowState(c *fiber.Ctx) error {
	key, ok := conversationKey(c)
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid conversation id")
	}

	stored, err := h.deps.Flows.LoadFlowState(c.Context(), key)
	if err != nil {
		return fail(c, err, "failed to load flow state")
	}

	state, err := flow.NormalizeState(stored, h.cfg.DefaultRestaurantURL)
	if err != nil {
		return fail(c, err, "failed to load flow state")
	}

	return Success(c, state)
}
