package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// StoreType selects which Store backend NewStore constructs.
type StoreType string

const (
	StoreTypeFS  StoreType = "fs"
	StoreTypeS3  StoreType = "s3"
	StoreTypeGCS StoreType = "gcs"
)

// Config selects and parameterizes the blob store backend. The
// engine plane builds this from its own config.Config so storage
// selection lives alongside the rest of process configuration rather
// than re-reading the environment inside this package.
type Config struct {
	StorageType StoreType // defaults to StoreTypeFS

	DataDir string // fs backend root

	S3Bucket   string
	S3Region   string
	S3Endpoint string // custom endpoint, for MinIO/LocalStack
	S3Prefix   string

	GCSBucket string
	GCSPrefix string
}

// NewStore constructs the blob store cfg selects.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	storeType := cfg.StorageType
	if storeType == "" {
		storeType = StoreTypeFS
	}

	switch storeType {
	case StoreTypeFS:
		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = "data"
		}
		return NewFileStore(filepath.Join(dataDir, "artifacts"))
	case StoreTypeS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("artifact S3 bucket is required for S3 storage")
		}
		region := cfg.S3Region
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
	case StoreTypeGCS:
		return newGCSStoreFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported artifact storage type: %s", storeType)
	}
}
