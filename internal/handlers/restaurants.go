package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/rappi-flow/internal/models"
	"github.com/foxxcyber/rappi-flow/internal/services"
)

type rankRequest struct {
	Query          string                  `json:"query"`
	Max            int                     `json:"max"`
	MinRating      *float64                `json:"minRating"`
	DeliveryFeeMax *float64                `json:"deliveryFeeMax"`
	Cards          []models.RestaurantCard `json:"cards"`
}

// RankRestaurants ranks search cards collected by the caller
func (h *Handler) RankRestaurants(c *fiber.Ctx) error {
	var req rankRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	results := h.ranker.Rank(req.Cards, models.RestaurantSearchParams{
		BaseURL:        h.cfg.BaseURL,
		Query:          req.Query,
		Max:            req.Max,
		MinRating:      req.MinRating,
		DeliveryFeeMax: req.DeliveryFeeMax,
	})
	if results == nil {
		results = []models.Restaurant{}
	}

	return SuccessWithMeta(c, results, len(results), req.Max)
}

// SearchRestaurants loads a storefront search page through the browser bridge and ranks it
func (h *Handler) SearchRestaurants(c *fiber.Ctx) error {
	if h.deps.Search == nil {
		return Error(c, fiber.StatusServiceUnavailable, "restaurant search is not configured")
	}

	params := models.RestaurantSearchParams{
		BaseURL: h.cfg.BaseURL,
		Query:   c.Query("query"),
		City:    c.Query("city", h.cfg.DefaultCity),
		Max:     c.QueryInt("max", 0),
	}
	if value := c.Query("minRating"); value != "" {
		rating, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Error(c, fiber.StatusBadRequest, "minRating must be a number")
		}
		params.MinRating = &rating
	}
	if value := c.Query("deliveryFeeMax"); value != "" {
		fee, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Error(c, fiber.StatusBadRequest, "deliveryFeeMax must be a number")
		}
		params.DeliveryFeeMax = &fee
	}

	searchURL, err := services.BuildRestaurantsSearchURL(params.BaseURL, params.Query, params.City)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "invalid storefront base url")
	}

	cards, err := h.deps.Search.SearchRestaurants(c.Context(), searchURL)
	if err != nil {
		return fail(c, err, "failed to search restaurants")
	}

	results := h.ranker.Rank(cards, params)
	if results == nil {
		results = []models.Restaurant{}
	}

	return SuccessWithMeta(c, results, len(results), params.Max)
}
