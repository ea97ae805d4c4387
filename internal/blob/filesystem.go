package blob

import (
	"github.com/mg15best/impulsa-lov-sub001/internal/infra/blob/fs"
)

// NewFilesystem returns a Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
