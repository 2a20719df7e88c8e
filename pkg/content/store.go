package content

import (
	"context"
	"io"
	"path"
	"strings"
)

// ContentID identifies a resource below the document root.
//
// IDs are slash-separated relative paths such as "index.html" or
// "docs/guide.txt". They never start with a slash and never contain ".."
// segments; use ParseID to build one from an untrusted request target.
type ContentID string

// ParseID converts a request path into a ContentID.
//
// Leading slashes are dropped and the path is cleaned. Any ".." segment in
// the raw path is rejected with ErrInvalidContentID, even when cleaning
// would keep the result inside the root, so that traversal attempts are
// refused instead of silently rewritten.
func ParseID(raw string) (ContentID, error) {
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return "", ErrInvalidContentID
		}
	}

	cleaned := strings.TrimPrefix(path.Clean("/"+raw), "/")
	if cleaned == "" {
		cleaned = "."
	}
	return ContentID(cleaned), nil
}

// ContentStore provides read access to the resources served by the web
// adapter.
//
// Implementations must be safe for concurrent use: every worker and the
// dispatcher (when measuring targets) call into the same store.
//
// Error contract:
//   - ErrContentNotFound when the resource does not exist
//   - ErrNotRegularFile when the resource is a directory or other non-file
//   - ErrAccessDenied when the backend refuses access
//   - ctx.Err() when the context is already done
type ContentStore interface {
	// ReadContent opens the resource for reading and returns the size of
	// what was opened. The size describes the returned reader, not an
	// earlier lookup, so it is the one to put on the wire. The caller
	// closes the reader.
	ReadContent(ctx context.Context, id ContentID) (io.ReadCloser, uint64, error)

	// GetContentSize returns the size of the resource in bytes.
	GetContentSize(ctx context.Context, id ContentID) (uint64, error)

	// ContentExists reports whether a regular resource exists at id.
	ContentExists(ctx context.Context, id ContentID) (bool, error)

	// Close releases backend resources.
	Close() error
}

// WritableContentStore is implemented by stores that can be seeded with
// content (tests, the memory store, the bootstrap of a local document root).
type WritableContentStore interface {
	ContentStore

	// WriteContent creates or replaces the resource at id.
	WriteContent(ctx context.Context, id ContentID, data []byte) error

	// Delete removes the resource at id. Deleting a missing resource is not
	// an error.
	Delete(ctx context.Context, id ContentID) error
}
