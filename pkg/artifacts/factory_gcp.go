//go:build gcp

package artifacts

import (
	"context"
	"fmt"
)

func newGCSStoreFromConfig(ctx context.Context, cfg Config) (Store, error) {
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("artifact GCS bucket is required for GCS storage")
	}

	return NewGCSStore(ctx, GCSStoreConfig{
		Bucket: cfg.GCSBucket,
		Prefix: cfg.GCSPrefix,
	})
}
