package content

import "errors"

// ============================================================================
// Standard Content Store Errors
// ============================================================================

// These errors provide a consistent way to indicate common failure conditions
// across all content store implementations. The request handler maps them to
// HTTP status codes and the admission policy maps every one of them to the
// "unmeasurable" ordering key.
//
// Implementations should wrap these errors with additional context:
//
//	if !fileExists {
//	    return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
//	}

var (
	// ErrContentNotFound indicates the requested content does not exist.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrContentNotFound = errors.New("content not found")

	// ErrNotRegularFile indicates the ID names a directory or another
	// non-regular object that cannot be served as a body.
	//
	// Protocol Mapping:
	//   - HTTP: 403 Forbidden
	ErrNotRegularFile = errors.New("not a regular file")

	// ErrAccessDenied indicates the backend refused to read the content
	// (file permissions, bucket policy).
	//
	// Protocol Mapping:
	//   - HTTP: 403 Forbidden
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidContentID indicates the ID is malformed or tries to escape
	// the document root.
	//
	// Protocol Mapping:
	//   - HTTP: 403 Forbidden
	ErrInvalidContentID = errors.New("invalid content ID")

	// ErrUnavailable indicates the storage backend is temporarily unavailable.
	//
	// This is a transient error - retrying may succeed.
	//
	// Protocol Mapping:
	//   - HTTP: 503 Service Unavailable
	ErrUnavailable = errors.New("storage unavailable")
)
