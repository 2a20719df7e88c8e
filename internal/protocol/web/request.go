package web

import (
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/dittoweb/pkg/content"
)

// DefaultIndex is served for URIs that end in a slash.
const DefaultIndex = "index.html"

var (
	// ErrMalformedRequest is returned for a request line with fewer than
	// three fields.
	ErrMalformedRequest = errors.New("malformed request line")

	// ErrDynamicContent is returned when a URI names a CGI program.
	ErrDynamicContent = errors.New("dynamic content is not supported")
)

// Request is a parsed request line.
type Request struct {
	Method  string
	URI     string
	Version string
}

// ParseRequestLine splits "METHOD URI VERSION". Extra fields are ignored.
func ParseRequestLine(line string) (*Request, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRequest, line)
	}

	return &Request{
		Method:  fields[0],
		URI:     fields[1],
		Version: fields[2],
	}, nil
}

// Target is the resource a URI resolves to.
type Target struct {
	// ID is the content ID under the document root.
	ID content.ContentID

	// Dynamic is set for URIs that would execute a CGI program.
	Dynamic bool

	// Args holds the query string (without '?').
	Args string
}

// ResolveURI maps a request URI onto the document root.
//
// A URI containing "cgi" is dynamic. The query string is split off, a
// trailing slash selects the index document, and any ".." segment fails
// with content.ErrInvalidContentID.
func ResolveURI(uri, index string) (Target, error) {
	if index == "" {
		index = DefaultIndex
	}

	path, args, _ := strings.Cut(uri, "?")
	dynamic := strings.Contains(uri, "cgi")

	if !dynamic && (path == "" || strings.HasSuffix(path, "/")) {
		path += index
	}

	id, err := content.ParseID(path)
	if err != nil {
		return Target{}, fmt.Errorf("uri %q: %w", uri, err)
	}

	return Target{ID: id, Dynamic: dynamic, Args: args}, nil
}
