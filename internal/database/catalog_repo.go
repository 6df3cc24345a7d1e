package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/models"
)

// SaveCatalog keeps the latest catalog of a restaurant
func (db *DB) SaveCatalog(ctx context.Context, catalog *models.MenuCatalog, archiveKey string) error {
	raw, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}

	var key *string
	if archiveKey != "" {
		key = &archiveKey
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO menu_catalogs (restaurant_url, restaurant_name, item_count, catalog, scraped_at, archive_key, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (restaurant_url) DO UPDATE SET
			restaurant_name = EXCLUDED.restaurant_name,
			item_count = EXCLUDED.item_count,
			catalog = EXCLUDED.catalog,
			scraped_at = EXCLUDED.scraped_at,
			archive_key = COALESCE(EXCLUDED.archive_key, menu_catalogs.archive_key),
			updated_at = NOW()
	`, catalog.RestaurantURL, catalog.RestaurantName, catalog.ItemCount, raw, catalog.ScrapedAt, key)
	if err != nil {
		return fmt.Errorf("failed to save catalog: %w", err)
	}
	return nil
}

// GetCatalog returns the latest stored catalog of a restaurant
func (db *DB) GetCatalog(ctx context.Context, restaurantURL string) (*models.MenuCatalog, error) {
	var raw []byte
	err := db.Pool.QueryRow(ctx, `
		SELECT catalog FROM menu_catalogs WHERE restaurant_url = $1
	`, restaurantURL).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no catalog stored for %s: %w", restaurantURL, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	var catalog models.MenuCatalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return &catalog, nil
}

// CatalogArchiveKey returns the object key the latest archived catalog was stored under
func (db *DB) CatalogArchiveKey(ctx context.Context, restaurantURL string) (string, error) {
	var key *string
	err := db.Pool.QueryRow(ctx, `
		SELECT archive_key FROM menu_catalogs WHERE restaurant_url = $1
	`, restaurantURL).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("no catalog stored for %s: %w", restaurantURL, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("failed to load catalog archive key: %w", err)
	}
	if key == nil {
		return "", nil
	}
	return *key, nil
}
