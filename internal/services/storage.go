package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/foxxcyber/rappi-flow/internal/models"
)

// StorageService archives catalogs, cart plans and menu screenshots in S3-compatible storage
type StorageService struct {
	client     *minio.Client
	bucketName string
	region     string
	newID      func() uuid.UUID
}

// UploadResult contains information about an uploaded artifact
type UploadResult struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	ETag        string `json:"etag"`
}

// NewStorageService creates a new S3 storage service
func NewStorageService(endpoint, accessKey, secretKey, bucketName, region string, useSSL bool) (*StorageService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &StorageService{
		client:     client,
		bucketName: bucketName,
		region:     region,
		newID:      uuid.New,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *StorageService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{
			Region: s.region,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// artifactKey builds "<kind>/<scope>/<uuid><ext>", skipping an empty scope
func artifactKey(kind, scope string, id uuid.UUID, ext string) string {
	if scope == "" {
		return path.Join(kind, id.String()+ext)
	}
	return path.Join(kind, scope, id.String()+ext)
}

// restaurantScope is the per-restaurant key prefix derived from its URL
func restaurantScope(restaurantURL string) string {
	scope := Slugify(path.Base(restaurantURL))
	if scope == "" {
		return "unknown"
	}
	return scope
}

// ArchiveCatalog stores a catalog under catalogs/<restaurant>/
func (s *StorageService) ArchiveCatalog(ctx context.Context, catalog *models.MenuCatalog) (*UploadResult, error) {
	return s.uploadJSON(ctx, artifactKey("catalogs", restaurantScope(catalog.RestaurantURL), s.newID(), ".json"), catalog)
}

// ArchiveCartPlan stores a cart plan under carts/
func (s *StorageService) ArchiveCartPlan(ctx context.Context, plan *models.CartPlan) (*UploadResult, error) {
	return s.uploadJSON(ctx, artifactKey("carts", "", s.newID(), ".json"), plan)
}

// ArchiveScreenshot stores a menu screenshot under screenshots/<restaurant>/
func (s *StorageService) ArchiveScreenshot(ctx context.Context, restaurantURL string, image []byte) (*UploadResult, error) {
	key := artifactKey("screenshots", restaurantScope(restaurantURL), s.newID(), ".png")
	return s.upload(ctx, key, bytes.NewReader(image), int64(len(image)), "image/png")
}

// LoadCatalog reads an archived catalog back
func (s *StorageService) LoadCatalog(ctx context.Context, key string) (*models.MenuCatalog, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	var catalog models.MenuCatalog
	if err := json.NewDecoder(obj).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", key, err)
	}
	return &catalog, nil
}

// GetPresignedURL generates a presigned URL for downloading an artifact
func (s *StorageService) GetPresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.bucketName, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

func (s *StorageService) uploadJSON(ctx context.Context, key string, value any) (*UploadResult, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json")
}

func (s *StorageService) upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*UploadResult, error) {
	info, err := s.client.PutObject(ctx, s.bucketName, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	return &UploadResult{
		Bucket:      info.Bucket,
		Key:         info.Key,
		Size:        info.Size,
		ContentType: contentType,
		ETag:        info.ETag,
	}, nil
}
