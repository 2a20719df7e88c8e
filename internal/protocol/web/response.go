package web

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"mime"
	"path"
)

// Status codes produced by the handler.
const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusForbidden           = 403
	StatusNotFound            = 404
	StatusInternalServerError = 500
	StatusNotImplemented      = 501
	StatusServiceUnavailable  = 503
)

// StatusText returns the reason phrase for code.
func StatusText(code int) string {
	switch code {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusForbidden:
		return "Forbidden"
	case StatusNotFound:
		return "Not Found"
	case StatusInternalServerError:
		return "Internal Server Error"
	case StatusNotImplemented:
		return "Not Implemented"
	case StatusServiceUnavailable:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}

// ContentType guesses the media type from the file extension.
// Unknown extensions are served as text/plain.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "text/plain"
}

// errorBody renders the HTML page sent with an error status.
func errorBody(server string, code int, cause, longMsg string) string {
	return fmt.Sprintf("<!doctype html>\r\n"+
		"<head>\r\n"+
		"  <title>%s Error</title>\r\n"+
		"</head>\r\n"+
		"<body>\r\n"+
		"  <h2>%d: %s</h2>\r\n"+
		"  <p>%s: %s</p>\r\n"+
		"</body>\r\n"+
		"</html>\r\n",
		html.EscapeString(server), code, StatusText(code),
		html.EscapeString(longMsg), html.EscapeString(cause))
}

// writeHeader writes the status line and headers terminated by a blank line.
func writeHeader(w *bufio.Writer, server string, code int, contentType string, length uint64) error {
	_, err := fmt.Fprintf(w, "HTTP/1.0 %d %s\r\n"+
		"Server: %s\r\n"+
		"Content-Type: %s\r\n"+
		"Content-Length: %d\r\n"+
		"\r\n",
		code, StatusText(code), server, contentType, length)
	return err
}

// writeError sends a complete error response and returns the body size.
func writeError(w io.Writer, server string, code int, cause, longMsg string) (int64, error) {
	body := errorBody(server, code, cause, longMsg)

	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, server, code, "text/html", uint64(len(body))); err != nil {
		return 0, err
	}
	n, err := bw.WriteString(body)
	if err != nil {
		return int64(n), err
	}
	return int64(n), bw.Flush()
}
