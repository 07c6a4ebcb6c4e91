package media

import (
	"context"
	"io"
)

// Uploader is the external media collaborator. Workflows only ever see
// URLs: the binary never touches the credential store.
type Uploader interface {
	Upload(ctx context.Context, file io.Reader, filename string) (string, error)
	Destroy(ctx context.Context, assetURL string) error
}
