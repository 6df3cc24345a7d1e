package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/rappi-flow/internal/middleware"
)

// Routes registers the API on app
func (h *Handler) Routes(app *fiber.App) {
	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Auth routes (public)
	auth := api.Group("/auth")
	auth.Post("/token", h.IssueToken)

	protected := middleware.AuthRequired(h.SigningKey())

	// Chat flow routes
	flows := api.Group("/flow", protected)
	flows.Post("/:conversation/callback", h.FlowCallback)
	flows.Get("/:conversation", h.GetFlowState)

	// Menu routes
	menus := api.Group("/menus", protected)
	menus.Get("/", h.GetMenu)
	menus.Get("/archive", h.GetMenuArchive)
	menus.Post("/extract", h.ExtractMenu)
	menus.Post("/ocr", h.ExtractMenuFromImage)
	menus.Post("/fetch", h.FetchMenu)

	// Cart routes
	carts := api.Group("/carts", protected)
	carts.Post("/", h.BuildCart)
	carts.Post("/dry-run", h.DryRun)

	// Restaurant routes
	restaurants := api.Group("/restaurants", protected)
	restaurants.Get("/search", h.SearchRestaurants)
	restaurants.Post("/rank", h.RankRestaurants)
}
