package blob

import (
	memorystore "github.com/Ajanth06/medsafe-udi-sub000/internal/infra/blob/memory"
)

// NewMemory returns an in-memory blob.Store.
func NewMemory() Store { return memorystore.New() }
