package pinning

import (
	"context"
	"io"
)

// File is one uploaded asset. Body is consumed exactly once.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Pinner durably stores content and returns its CID.
type Pinner interface {
	PinFile(ctx context.Context, f File) (string, error)
	PinJSON(ctx context.Context, name string, doc any) (string, error)
}
