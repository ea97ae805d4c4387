package blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/mg15best/impulsa-lov-sub001/internal/config"
)

// Open builds the Store selected by cfg. DriverNone and an empty driver
// return a nil Store and no error.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch Driver(strings.ToLower(cfg.Driver)) {
	case "", DriverNone:
		return nil, nil
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
