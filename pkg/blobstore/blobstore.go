// Package blobstore abstracts the small UTF-8 object store used to
// persist cooldown timestamps durably across controller invocations.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists under the given
// name. Callers use errors.Is to distinguish this from a transport
// failure — only a confirmed-absent key returns ErrNotFound.
var ErrNotFound = errors.New("blobstore: object not found")

// BlobStore reads and writes small UTF-8 objects by name. Values are
// short strings (ISO-8601 timestamps in this system); there is no
// streaming API because nothing stored here is large.
type BlobStore interface {
	// Get returns the object's content, or ErrNotFound if the key does
	// not exist. Any other error is a transient transport failure.
	Get(ctx context.Context, name string) ([]byte, error)

	// Put unconditionally overwrites the object at name.
	Put(ctx context.Context, name string, data []byte) error
}
