package blob

import (
	memorystore "github.com/mg15best/impulsa-lov-sub001/internal/infra/blob/memory"
)

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }
