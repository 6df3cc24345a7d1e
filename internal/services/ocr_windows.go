//go:build windows

package services

import (
	"errors"
)

var errOCRUnavailable = errors.New("OCR is not available on Windows, run the server in the Docker image")

// OCRService reads menu text from storefront screenshots (stub for Windows)
type OCRService struct{}

// OCRResult contains the OCR processing result
type OCRResult struct {
	Text  string
	Lines []string
}

// NewOCRService creates a new OCR service (not available on Windows)
func NewOCRService(language string) (*OCRService, error) {
	return nil, errOCRUnavailable
}

// ProcessImage extracts text from an encoded image
func (s *OCRService) ProcessImage(imageBytes []byte) (*OCRResult, error) {
	return nil, errOCRUnavailable
}

// Close releases OCR resources
func (s *OCRService) Close() error {
	return nil
}
