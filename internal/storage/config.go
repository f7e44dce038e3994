package storage

import (
	"context"
	"fmt"

	"github.com/contextforge/contextforge/backend/go-services/internal/config"
)

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// Region is fixed up front so the client never asks the server for the
	// bucket location.
	Region    string
}

// MinIOConfigFrom extracts the MinIO settings from the service config.
func MinIOConfigFrom(cfg config.StorageConfig) *MinIOConfig {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "contextforge"
	}
	return &MinIOConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		UseSSL:    cfg.MinIOUseSSL,
		Bucket:    bucket,
		Region:    cfg.MinIORegion,
	}
}

// New builds the gateway selected by cfg.Driver. For the local driver the
// concrete *LocalStorage is returned as well so the blob endpoint can serve it.
func New(ctx context.Context, cfg config.StorageConfig) (Gateway, *LocalStorage, error) {
	switch cfg.Driver {
	case "minio":
		s, err := NewMinIOStorage(ctx, MinIOConfigFrom(cfg))
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case "local", "":
		signer, err := NewSigner(cfg.SigningSecret)
		if err != nil {
			return nil, nil, err
		}
		s, err := NewLocalStorage(cfg.LocalRoot, cfg.PublicURL, signer)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
}
