// Package blob exposes the archive blob stores behind one factory.
package blob

import (
	"github.com/mg15best/impulsa-lov-sub001/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	DriverNone       = core.DriverNone
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	// ErrExists is returned when writing over an existing key.
	ErrExists = core.ErrExists
	// ErrNotFound is returned when reading a missing key.
	ErrNotFound = core.ErrNotFound
)
