// Package assets stores story images and manages their lifecycle: upload
// validation, the shared placeholder, orphan deletion and best-effort
// cleanup after a story is removed.
package assets

import (
	"context"
	"io"
)

// Store is a backend holding image bytes under generated names.
type Store interface {
	// Put stores r under name and returns the public URL of the result.
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	// Remove deletes the object addressed by ref. An object that does not
	// exist, or a ref this store does not own, yields common.ErrNotFound.
	Remove(ctx context.Context, ref string) error
	// Canonical maps any spelling of a ref this store owns (other host,
	// query, fragment, dot segments) onto the URL Put would have returned.
	// ok is false for refs the store does not own.
	Canonical(ref string) (canonical string, ok bool)
	Name() string
}
