package handlers

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/config"
	"github.com/foxxcyber/rappi-flow/internal/database"
	"github.com/foxxcyber/rappi-flow/internal/flow"
	"github.com/foxxcyber/rappi-flow/internal/models"
	"github.com/foxxcyber/rappi-flow/internal/services"
)

// CatalogStore keeps the latest catalog per restaurant
type CatalogStore interface {
	SaveCatalog(ctx context.Context, catalog *models.MenuCatalog, archiveKey string) error
	GetCatalog(ctx context.Context, restaurantURL string) (*models.MenuCatalog, error)
	CatalogArchiveKey(ctx context.Context, restaurantURL string) (string, error)
}

// Archiver uploads catalogs and cart plans to object storage
type Archiver interface {
	ArchiveCatalog(ctx context.Context, catalog *models.MenuCatalog) (*services.UploadResult, error)
	ArchiveCartPlan(ctx context.Context, plan *models.CartPlan) (*services.UploadResult, error)
	GetPresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// RestaurantSearcher returns the raw result cards of a storefront search page
type RestaurantSearcher interface {
	SearchRestaurants(ctx context.Context, searchURL string) ([]models.RestaurantCard, error)
}

// ImageReader extracts text from a menu photo or screenshot
type ImageReader interface {
	ProcessImage(imageBytes []byte) (*services.OCRResult, error)
}

// Deps are the collaborators of the API. Flows and Menus are required, the rest may be nil.
type Deps struct {
	Flows    database.FlowStateRepo
	Menus    flow.MenuFetcher
	Payments flow.PaymentAttempter
	Catalogs CatalogStore
	Archive  Archiver
	Search   RestaurantSearcher
	OCR      ImageReader
}

// Handler holds all handler dependencies
type Handler struct {
	cfg        *config.Config
	signingKey []byte
	controller *flow.Controller
	deps       Deps
	extractor  *services.MenuExtractor
	matcher    *services.CartMatcher
	ranker     *services.RestaurantRanker

	// one in-flight callback per conversation
	locksMu sync.Mutex
	locks   map[string]*conversationLock
}

// conversationLock is dropped from the map once nobody holds or waits on it
type conversationLock struct {
	mu      sync.Mutex
	holders int
}

// New creates a new Handler instance
func New(cfg *config.Config, deps Deps) *Handler {
	return &Handler{
		cfg:        cfg,
		signingKey: services.DeriveSigningKey(cfg.JWTSecret),
		controller: flow.NewController(deps.Menus, deps.Payments),
		deps:       deps,
		extractor:  services.NewMenuExtractor(services.DefaultExtractorConfig()),
		matcher:    services.NewCartMatcher(),
		ranker:     services.NewRestaurantRanker(services.DefaultRankWeights()),
		locks:      map[string]*conversationLock{},
	}
}

// SigningKey is the HMAC key bot tokens are signed with
func (h *Handler) SigningKey() []byte {
	return h.signingKey
}

// ErrorHandler is a custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	} else if apperr.Kind(err) != "internal" {
		code = apperr.HTTPStatus(err)
		message = err.Error()
	} else {
		log.Printf("Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	}

	return Error(c, code, message)
}

// APIResponse is a standard API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta describes list results
type Meta struct {
	Total int `json:"total"`
	Limit int `json:"limit"`
}

// Success returns a successful response
func Success(c *fiber.Ctx, data interface{}) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMeta returns a successful list response
func SuccessWithMeta(c *fiber.Ctx, data interface{}, total, limit int) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Total: total,
			Limit: limit,
		},
	})
}

// Error returns an error response
func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

// fail maps a domain error onto its status code
func fail(c *fiber.Ctx, err error, internalMessage string) error {
	if apperr.Kind(err) == "internal" {
		log.Printf("Error on %s %s: %v", c.Method(), c.Path(), err)
		return Error(c, fiber.StatusInternalServerError, internalMessage)
	}
	return Error(c, apperr.HTTPStatus(err), err.Error())
}

func (h *Handler) lockConversation(key string) func() {
	h.locksMu.Lock()
	lock, ok := h.locks[key]
	if !ok {
		lock = &conversationLock{}
		h.locks[key] = lock
	}
	lock.holders++
	h.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		h.locksMu.Lock()
		lock.holders--
		if lock.holders == 0 {
			delete(h.locks, key)
		}
		h.locksMu.Unlock()
	}
}

// storeCatalog archives and records a catalog; failures only degrade the response
func (h *Handler) storeCatalog(ctx context.Context, catalog *models.MenuCatalog, archive bool) {
	archiveKey := ""
	if archive && h.deps.Archive != nil {
		result, err := h.deps.Archive.ArchiveCatalog(ctx, catalog)
		if err != nil {
			log.Printf("Warning: failed to archive catalog for %s: %v", catalog.RestaurantURL, err)
		} else {
			archiveKey = result.Key
		}
	}

	if h.deps.Catalogs != nil {
		if err := h.deps.Catalogs.SaveCatalog(ctx, catalog, archiveKey); err != nil {
			log.Printf("Warning: failed to save catalog for %s: %v", catalog.RestaurantURL, err)
		}
	}
}
