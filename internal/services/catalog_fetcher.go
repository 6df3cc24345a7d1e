package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/models"
)

// CandidateSource produces raw menu candidates for one restaurant page
type CandidateSource interface {
	Name() string
	Candidates(ctx context.Context, restaurantURL string) (*models.CandidateBundle, error)
}

type candidateFetcher interface {
	FetchCandidates(ctx context.Context, restaurantURL string) (*models.CandidateBundle, error)
}

type screenshotter interface {
	CaptureScreenshot(ctx context.Context, restaurantURL string) ([]byte, error)
}

type textRecognizer interface {
	ProcessImage(imageBytes []byte) (*OCRResult, error)
}

// ScreenshotArchiver keeps the screenshots OCR candidates were read from
type ScreenshotArchiver interface {
	ArchiveScreenshot(ctx context.Context, restaurantURL string, image []byte) (*UploadResult, error)
}

// CatalogArchiver keeps every fetched catalog
type CatalogArchiver interface {
	ArchiveCatalog(ctx context.Context, catalog *models.MenuCatalog) (*UploadResult, error)
}

// DOMCandidateSource reads candidates scanned from the page DOM by the browser bridge
type DOMCandidateSource struct {
	bridge candidateFetcher
}

// NewDOMCandidateSource creates a DOM candidate source
func NewDOMCandidateSource(bridge candidateFetcher) *DOMCandidateSource {
	return &DOMCandidateSource{bridge: bridge}
}

func (s *DOMCandidateSource) Name() string { return "dom" }

func (s *DOMCandidateSource) Candidates(ctx context.Context, restaurantURL string) (*models.CandidateBundle, error) {
	return s.bridge.FetchCandidates(ctx, restaurantURL)
}

// OCRCandidateSource reads candidates from a full-page screenshot. It recovers items
// the DOM scan misses when the storefront renders prices into images.
type OCRCandidateSource struct {
	camera    screenshotter
	ocr       textRecognizer
	extractor *MenuExtractor
	archive   ScreenshotArchiver
}

// NewOCRCandidateSource creates an OCR candidate source. archive may be nil.
func NewOCRCandidateSource(camera screenshotter, ocr textRecognizer, extractor *MenuExtractor, archive ScreenshotArchiver) *OCRCandidateSource {
	return &OCRCandidateSource{
		camera:    camera,
		ocr:       ocr,
		extractor: extractor,
		archive:   archive,
	}
}

func (s *OCRCandidateSource) Name() string { return "ocr" }

func (s *OCRCandidateSource) Candidates(ctx context.Context, restaurantURL string) (*models.CandidateBundle, error) {
	image, err := s.camera.CaptureScreenshot(ctx, restaurantURL)
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		if _, err := s.archive.ArchiveScreenshot(ctx, restaurantURL, image); err != nil {
			log.Printf("Warning: failed to archive menu screenshot: %v", err)
		}
	}

	result, err := s.ocr.ProcessImage(image)
	if err != nil {
		return nil, fmt.Errorf("menu OCR failed: %v: %w", err, apperr.ErrCollaborator)
	}

	return &models.CandidateBundle{
		Candidates: s.extractor.CandidatesFromText(result.Text),
	}, nil
}

// CatalogFetcher scans a restaurant with every configured source at once and builds one
// catalog from the combined candidates. Duplicates across sources merge during the build.
type CatalogFetcher struct {
	extractor *MenuExtractor
	sources   []CandidateSource
	archive   CatalogArchiver
}

// NewCatalogFetcher creates a catalog fetcher. archive may be nil.
func NewCatalogFetcher(extractor *MenuExtractor, archive CatalogArchiver, sources ...CandidateSource) *CatalogFetcher {
	return &CatalogFetcher{
		extractor: extractor,
		sources:   sources,
		archive:   archive,
	}
}

// FetchMenu returns the catalog of restaurantURL. A failing source is skipped as long as
// another one succeeds; a policy violation from any source aborts the whole fetch.
func (f *CatalogFetcher) FetchMenu(ctx context.Context, restaurantURL string) (*models.MenuCatalog, error) {
	safeURL, err := AssertRestaurantURL(restaurantURL)
	if err != nil {
		return nil, err
	}
	if len(f.sources) == 0 {
		return nil, fmt.Errorf("no menu sources configured: %w", apperr.ErrCollaborator)
	}

	bundles := make([]*models.CandidateBundle, len(f.sources))
	failures := make([]error, len(f.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, source := range f.sources {
		i, source := i, source
		g.Go(func() error {
			bundle, err := source.Candidates(gctx, safeURL)
			if err != nil {
				if errors.Is(err, apperr.ErrPolicyViolation) {
					return err
				}
				log.Printf("Warning: menu source %s failed for %s: %v", source.Name(), safeURL, err)
				failures[i] = fmt.Errorf("%s: %w", source.Name(), err)
				return nil
			}
			bundles[i] = bundle
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	meta := models.RestaurantMeta{URL: safeURL}
	var candidates []models.MenuCandidate
	succeeded := 0
	for _, bundle := range bundles {
		if bundle == nil {
			continue
		}
		succeeded++
		if meta.Name == "" {
			meta.Name = bundle.RestaurantName
		}
		candidates = append(candidates, bundle.Candidates...)
	}
	if succeeded == 0 {
		return nil, fmt.Errorf("all menu sources failed: %w", errors.Join(failures...))
	}

	catalog, err := f.extractor.BuildCatalog(meta, candidates)
	if err != nil {
		return nil, err
	}

	if f.archive != nil {
		if result, err := f.archive.ArchiveCatalog(ctx, catalog); err != nil {
			log.Printf("Warning: failed to archive catalog for %s: %v", safeURL, err)
		} else {
			log.Printf("Archived catalog for %s at %s", safeURL, result.Key)
		}
	}

	log.Printf("Fetched %d menu items for %s from %d source(s)", catalog.ItemCount, safeURL, succeeded)
	return catalog, nil
}

// LoadCatalogFile reads a catalog previously written by a menu fetch
func LoadCatalogFile(path string) (*models.MenuCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("menu file %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read menu file: %w", err)
	}

	var catalog models.MenuCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("menu file %s is not a catalog: %v: %w", path, err, apperr.ErrMalformedInput)
	}
	catalog.ItemCount = len(catalog.Items)
	return &catalog, nil
}

// CatalogFileFetcher serves a pre-fetched catalog instead of scanning the storefront
type CatalogFileFetcher struct {
	path string
}

// NewCatalogFileFetcher creates a fetcher backed by a catalog file
func NewCatalogFileFetcher(path string) *CatalogFileFetcher {
	return &CatalogFileFetcher{path: path}
}

// FetchMenu returns the file's catalog when it belongs to restaurantURL
func (f *CatalogFileFetcher) FetchMenu(ctx context.Context, restaurantURL string) (*models.MenuCatalog, error) {
	safeURL, err := AssertRestaurantURL(restaurantURL)
	if err != nil {
		return nil, err
	}

	catalog, err := LoadCatalogFile(f.path)
	if err != nil {
		return nil, err
	}

	if catalog.RestaurantURL == "" {
		catalog.RestaurantURL = safeURL
	} else if catalog.RestaurantURL != safeURL {
		return nil, fmt.Errorf("menu file %s belongs to %s, not %s: %w", f.path, catalog.RestaurantURL, safeURL, apperr.ErrNotFound)
	}
	return catalog, nil
}
