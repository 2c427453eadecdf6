package blob

import (
	"github.com/Ajanth06/medsafe-udi-sub000/internal/infra/blob/fs"
)

// NewFilesystem constructs a filesystem-backed blob.Store rooted at root.
// baseURL prefixes the development download URLs; empty uses a placeholder host.
func NewFilesystem(root, baseURL string) (Store, error) {
	return fs.NewWithBaseURL(root, baseURL)
}
