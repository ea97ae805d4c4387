package blob

import (
	"context"

	infraS3 "github.com/mg15best/impulsa-lov-sub001/internal/infra/blob/s3"
)

// S3Config re-exports the S3 store configuration.
type S3Config = infraS3.Config

// NewS3 returns an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}
