package handlers

import (
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/rappi-flow/internal/models"
	"github.com/foxxcyber/rappi-flow/internal/services"
)

const (
	maxMenuImageBytes = 10 * 1024 * 1024
	archiveLinkExpiry = 15 * time.Minute
)

type archiveLinkResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type extractMenuRequest struct {
	RestaurantName string                 `json:"restaurantName"`
	RestaurantURL  string                 `json:"restaurantUrl"`
	Candidates     []models.MenuCandidate `json:"candidates"`
}

type fetchMenuRequest struct {
	RestaurantURL string `json:"restaurantUrl"`
}

// ExtractMenu builds a catalog from candidates scanned by a browser extension or sidecar
func (h *Handler) ExtractMenu(c *fiber.Ctx) error {
	var req extractMenuRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	catalog, err := h.extractor.BuildCatalog(models.RestaurantMeta{Name: req.RestaurantName, URL: req.RestaurantURL}, req.Candidates)
	if err != nil {
		return fail(c, err, "failed to build catalog")
	}

	h.storeCatalog(c.Context(), catalog, true)
	return Success(c, catalog)
}

// ExtractMenuFromImage builds a catalog from an uploaded menu photo
func (h *Handler) ExtractMenuFromImage(c *fiber.Ctx) error {
	if h.deps.OCR == nil {
		return Error(c, fiber.StatusServiceUnavailable, "menu OCR is not configured")
	}

	file, err := c.FormFile("image")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "image file is required")
	}

	contentType := file.Header.Get("Content-Type")
	if !isValidImageType(contentType) {
		return Error(c, fiber.StatusBadRequest, "invalid image type. Supported: JPEG, PNG, WebP")
	}

	if file.Size > maxMenuImageBytes {
		return Error(c, fiber.StatusBadRequest, "file too large. Maximum size is 10MB")
	}

	meta := models.RestaurantMeta{
		Name: c.FormValue("restaurantName"),
		URL:  c.FormValue("restaurantUrl"),
	}
	if _, err := services.AssertRestaurantURL(meta.URL); err != nil {
		return fail(c, err, "invalid restaurant url")
	}

	src, err := file.Open()
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to read file")
	}
	defer src.Close()

	imageBytes, err := io.ReadAll(src)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to read file")
	}

	result, err := h.deps.OCR.ProcessImage(imageBytes)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "OCR processing failed")
	}

	catalog, err := h.extractor.BuildCatalog(meta, h.extractor.CandidatesFromText(result.Text))
	if err != nil {
		return fail(c, err, "failed to build catalog")
	}

	h.storeCatalog(c.Context(), catalog, true)
	return Success(c, catalog)
}

// FetchMenu scans a restaurant through the configured menu sources
func (h *Handler) FetchMenu(c *fiber.Ctx) error {
	var req fetchMenuRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.RestaurantURL == "" {
		return Error(c, fiber.StatusBadRequest, "restaurantUrl is required")
	}

	catalog, err := h.deps.Menus.FetchMenu(c.Context(), req.RestaurantURL)
	if err != nil {
		return fail(c, err, "failed to fetch menu")
	}

	h.storeCatalog(c.Context(), catalog, false)
	return Success(c, catalog)
}

// GetMenu returns the latest stored catalog of a restaurant
func (h *Handler) GetMenu(c *fiber.Ctx) error {
	if h.deps.Catalogs == nil {
		return Error(c, fiber.StatusServiceUnavailable, "catalog store is not configured")
	}

	restaurantURL, err := services.AssertRestaurantURL(c.Query("url"))
	if err != nil {
		return fail(c, err, "invalid restaurant url")
	}

	catalog, err := h.deps.Catalogs.GetCatalog(c.Context(), restaurantURL)
	if err != nil {
		return fail(c, err, "failed to load catalog")
	}

	return Success(c, catalog)
}

// GetMenuArchive returns a short-lived download link of the latest archived catalog
func (h *Handler) GetMenuArchive(c *fiber.Ctx) error {
	if h.deps.Catalogs == nil || h.deps.Archive == nil {
		return Error(c, fiber.StatusServiceUnavailable, "catalog archive is not configured")
	}

	restaurantURL, err := services.AssertRestaurantURL(c.Query("url"))
	if err != nil {
		return fail(c, err, "invalid restaurant url")
	}

	key, err := h.deps.Catalogs.CatalogArchiveKey(c.Context(), restaurantURL)
	if err != nil {
		return fail(c, err, "failed to load catalog archive")
	}
	if key == "" {
		return Error(c, fiber.StatusNotFound, "catalog was never archived")
	}

	link, err := h.deps.Archive.GetPresignedURL(c.Context(), key, archiveLinkExpiry)
	if err != nil {
		return fail(c, err, "failed to create download link")
	}

	return Success(c, archiveLinkResponse{
		Key:       key,
		URL:       link,
		ExpiresAt: time.Now().Add(archiveLinkExpiry).UTC(),
	})
}

func isValidImageType(contentType string) bool {
	validTypes := []string{
		"image/jpeg",
		"image/jpg",
		"image/png",
		"image/webp",
	}

	for _, t := range validTypes {
		if strings.EqualFold(contentType, t) {
			return true
		}
	}
	return false
}
