package storage

import (
	"github.com/aanand-mishra/online-campus/internal/types"
	"github.com/google/uuid"
)

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// NewRowVersion returns a fresh row version token. Random tokens are
// enough: versions are only ever compared for equality.
func NewRowVersion() types.RowVersion {
	v := uuid.New()
	return types.RowVersion(v[:])
}
