package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/models"
	"github.com/foxxcyber/rappi-flow/internal/services"
)

// buildCartRequest carries the template either as JSON (order) or as a raw document
// (orderDocument + format, where format is json, yaml, yml, txt or md)
type buildCartRequest struct {
	Order         json.RawMessage     `json:"order"`
	OrderDocument string              `json:"orderDocument"`
	Format        string              `json:"format"`
	Catalog       *models.MenuCatalog `json:"catalog"`
}

type buildCartResponse struct {
	Cart       *models.CartPlan `json:"cart"`
	ArchiveKey string           `json:"archiveKey,omitempty"`
}

type dryRunRequest struct {
	Cart *models.CartPlan `json:"cart"`
}

func (req buildCartRequest) template() (*models.OrderTemplate, error) {
	if len(req.Order) > 0 {
		return services.ParseOrderDocument(string(req.Order), "json")
	}
	if req.OrderDocument != "" {
		format := req.Format
		if format == "" {
			format = "yaml"
		}
		return services.ParseOrderDocument(req.OrderDocument, format)
	}
	return nil, fmt.Errorf("order or orderDocument is required: %w", apperr.ErrMalformedInput)
}

// catalogFor resolves the catalog a template is matched against: the one sent with the
// request, the stored one, or a fresh fetch of the template's restaurant.
func (h *Handler) catalogFor(ctx context.Context, template *models.OrderTemplate, provided *models.MenuCatalog) (*models.MenuCatalog, error) {
	if provided != nil {
		provided.ItemCount = len(provided.Items)
		return provided, nil
	}
	if template.RestaurantURL == "" {
		return nil, fmt.Errorf("catalog is required when the template has no restaurantUrl: %w", apperr.ErrMalformedInput)
	}

	restaurantURL, err := services.AssertRestaurantURL(template.RestaurantURL)
	if err != nil {
		return nil, err
	}

	if h.deps.Catalogs != nil {
		catalog, err := h.deps.Catalogs.GetCatalog(ctx, restaurantURL)
		if err == nil {
			return catalog, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			log.Printf("Warning: failed to load stored catalog for %s: %v", restaurantURL, err)
		}
	}

	catalog, err := h.deps.Menus.FetchMenu(ctx, restaurantURL)
	if err != nil {
		return nil, err
	}
	h.storeCatalog(ctx, catalog, false)
	return catalog, nil
}

// BuildCart matches an order template against a restaurant catalog
func (h *Handler) BuildCart(c *fiber.Ctx) error {
	var req buildCartRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	template, err := req.template()
	if err != nil {
		return fail(c, err, "failed to parse order template")
	}

	catalog, err := h.catalogFor(c.Context(), template, req.Catalog)
	if err != nil {
		return fail(c, err, "failed to load catalog")
	}

	plan := h.matcher.BuildCartPlan(template, catalog)
	resp := buildCartResponse{Cart: plan}

	if h.deps.Archive != nil {
		result, err := h.deps.Archive.ArchiveCartPlan(c.Context(), plan)
		if err != nil {
			log.Printf("Warning: failed to archive cart plan: %v", err)
		} else {
			resp.ArchiveKey = result.Key
		}
	}

	return Success(c, resp)
}

// DryRun renders the checkout preview of a cart plan. The API never runs the payment
// confirmations; those only exist in the interactive CLI.
func (h *Handler) DryRun(c *fiber.Ctx) error {
	var req dryRunRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Cart == nil {
		return Error(c, fiber.StatusBadRequest, "cart is required")
	}

	return Success(c, services.BuildDryRunSummary(req.Cart))
}
