package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/models"
)

type stubSource struct {
	name   string
	bundle *models.CandidateBundle
	err    error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Candidates(context.Context, string) (*models.CandidateBundle, error) {
	return s.bundle, s.err
}

type stubCamera struct{ image []byte }

func (c stubCamera) CaptureScreenshot(context.Context, string) ([]byte, error) {
	return c.image, nil
}

type stubOCR struct{ text string }

func (o stubOCR) ProcessImage([]byte) (*OCRResult, error) {
	return &OCRResult{Text: o.text}, nil
}

type recordingArchive struct {
	mu          sync.Mutex
	catalogs    []*models.MenuCatalog
	screenshots int
}

func (a *recordingArchive) ArchiveCatalog(_ context.Context, catalog *models.MenuCatalog) (*UploadResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.catalogs = append(a.catalogs, catalog)
	return &UploadResult{Key: "catalogs/x.json"}, nil
}

func (a *recordingArchive) ArchiveScreenshot(context.Context, string, []byte) (*UploadResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.screenshots++
	return &UploadResult{Key: "screenshots/x.png"}, nil
}

func domBundle() *models.CandidateBundle {
	return &models.CandidateBundle{
		RestaurantName: "Guber",
		Candidates: []models.MenuCandidate{{
			NameText:  "Burger Doble",
			PriceText: "$ 12.500",
			RawText:   "Burger Doble $12.500",
		}},
	}
}

func TestCatalogFetcherMergesSources(t *testing.T) {
	t.Parallel()

	extractor := newTestExtractor()
	archive := &recordingArchive{}
	ocr := NewOCRCandidateSource(stubCamera{image: []byte("png")}, stubOCR{text: "Burger Doble $ 12.500\nMuzzarella $ 8.500\n"}, extractor, archive)

	fetcher := NewCatalogFetcher(extractor, archive, stubSource{name: "dom", bundle: domBundle()}, ocr)
	catalog, err := fetcher.FetchMenu(context.Background(), guberURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if catalog.RestaurantName != "Guber" || catalog.ItemCount != 2 {
		t.Fatalf("unexpected catalog %+v", catalog)
	}
	if catalog.Items[0].Name != "Burger Doble" || catalog.Items[1].Name != "Muzzarella" {
		t.Fatalf("unexpected items %+v", catalog.Items)
	}
	if len(archive.catalogs) != 1 || archive.screenshots != 1 {
		t.Fatalf("expected one archived catalog and screenshot, got %d and %d", len(archive.catalogs), archive.screenshots)
	}
}

func TestCatalogFetcherSkipsFailingSource(t *testing.T) {
	t.Parallel()

	fetcher := NewCatalogFetcher(newTestExtractor(), nil,
		stubSource{name: "dom", bundle: domBundle()},
		stubSource{name: "ocr", err: errors.New("tesseract crashed")},
	)

	catalog, err := fetcher.FetchMenu(context.Background(), guberURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.ItemCount != 1 {
		t.Fatalf("expected 1 item, got %d", catalog.ItemCount)
	}
}

func TestCatalogFetcherErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		sources []CandidateSource
		want    error
	}{
		{
			name:    "all sources fail",
			url:     guberURL,
			sources: []CandidateSource{stubSource{name: "dom", err: apperr.ErrCollaborator}},
			want:    apperr.ErrCollaborator,
		},
		{
			name: "policy violation aborts",
			url:  guberURL,
			sources: []CandidateSource{
				stubSource{name: "dom", bundle: domBundle()},
				stubSource{name: "ocr", err: apperr.ErrPolicyViolation},
			},
			want: apperr.ErrPolicyViolation,
		},
		{
			name:    "blocked vertical",
			url:     guberURL,
			sources: []CandidateSource{stubSource{name: "dom", bundle: &models.CandidateBundle{RestaurantName: "Turbo Market"}}},
			want:    apperr.ErrPolicyViolation,
		},
		{
			name:    "foreign url",
			url:     "https://www.example.com/restaurantes/1-x",
			sources: []CandidateSource{stubSource{name: "dom", bundle: domBundle()}},
			want:    apperr.ErrPolicyViolation,
		},
		{
			name: "no sources",
			url:  guberURL,
			want: apperr.ErrCollaborator,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewCatalogFetcher(newTestExtractor(), nil, tt.sources...).FetchMenu(context.Background(), tt.url)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCatalogFileFetcher(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "menu.json")
	content := `{"restaurantName":"Guber","restaurantUrl":"` + guberURL + `","items":[{"id":"faina-1200","name":"Faina","price":1200,"category":"General"}]}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write menu: %v", err)
	}

	catalog, err := NewCatalogFileFetcher(path).FetchMenu(context.Background(), guberURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.ItemCount != 1 || catalog.Items[0].ID != "faina-1200" {
		t.Fatalf("unexpected catalog %+v", catalog)
	}

	other := "https://www.rappi.com.ar/restaurantes/900-otro"
	if _, err := NewCatalogFileFetcher(path).FetchMenu(context.Background(), other); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for another restaurant, got %v", err)
	}

	if _, err := NewCatalogFileFetcher(filepath.Join(dir, "missing.json")).FetchMenu(context.Background(), guberURL); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for a missing file, got %v", err)
	}

	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("write menu: %v", err)
	}
	if _, err := LoadCatalogFile(path); !errors.Is(err, apperr.ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}
}
