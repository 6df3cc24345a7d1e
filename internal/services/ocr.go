//go:build !windows

package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// OCRService reads menu text from storefront screenshots
type OCRService struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// OCRResult contains the OCR processing result
type OCRResult struct {
	Text  string
	Lines []string
}

// NewOCRService creates a new OCR service for the given tesseract languages ("spa", "spa+eng")
func NewOCRService(language string) (*OCRService, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage(strings.Split(language, "+")...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	// Menu screenshots mix columns, headings and prices
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	return &OCRService{
		client: client,
	}, nil
}

// ProcessImage extracts text from an encoded image
func (s *OCRService) ProcessImage(imageBytes []byte) (*OCRResult, error) {
	if len(imageBytes) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	// A tesseract client holds one image at a time
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.SetImageFromBytes(imageBytes); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := s.client.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	return &OCRResult{
		Text:  text,
		Lines: lines,
	}, nil
}

// Close releases OCR resources
func (s *OCRService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
