package storage

import (
	"fmt"
	"time"
)

// FactoryConfig holds the settings needed to build a ModelStore.
type FactoryConfig struct {
	Type      string // s3, local
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
	LocalPath string
	Timeout   time.Duration
}

// NewStore creates a ModelStore instance based on the configuration.
// Parameters:
//   - cfg: store configuration including type, endpoint, and credentials.
// Returns:
//   - ModelStore: initialized store implementation.
//   - error: non-nil if the store cannot be created.
func NewStore(cfg *FactoryConfig) (ModelStore, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStore(cfg.LocalPath), nil
	case "s3", "":
		return NewS3Store(&S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
