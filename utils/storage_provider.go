package utils

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

const (
	StorageProviderGCS   = "gcs"
	StorageProviderLocal = "local"
)

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderGCS
	}
	return provider
}

func localStorageDir() string {
	dir := strings.TrimSpace(os.Getenv("DOCUMENT_STORAGE_DIR"))
	if dir == "" {
		dir = "documents"
	}
	return dir
}

// StoreRenderedDocument writes rendered document bytes to the configured
// provider and returns the storage location recorded on the Document row.
func StoreRenderedDocument(ctx context.Context, objectName string, content []byte, contentType string) (string, error) {
	if GetStorageProvider() == StorageProviderLocal {
		path := filepath.Join(localStorageDir(), filepath.FromSlash(objectName))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return "", err
		}
		return path, nil
	}
	return UploadDocumentToGCS(ctx, objectName, content, contentType)
}

// RemoveStoredDocument deletes a previously stored document, best-effort.
func RemoveStoredDocument(ctx context.Context, location string) error {
	if GetStorageProvider() == StorageProviderLocal {
		if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return DeleteDocumentFromGCS(ctx, ExtractObjectName(location))
}
