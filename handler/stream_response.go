package handler

import (
	"io"
	"mime"
	"net/http"
	"strconv"
)

type streamHeaders struct {
	contentType   string
	disposition   string
	contentLength int64
}

func (h streamHeaders) write(w http.ResponseWriter) {
	if h.contentType == "" {
		h.contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", h.contentType)
	if h.disposition != "" {
		w.Header().Set("Content-Disposition", h.disposition)
	}
	if h.contentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(h.contentLength, 10))
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

type StreamOption func(*streamHeaders)

// WithAttachment sets Content-Disposition to attachment with filename.
func WithAttachment(filename string) StreamOption {
	return func(h *streamHeaders) {
		h.disposition = mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	}
}

// WithInline sets Content-Disposition to inline with filename.
func WithInline(filename string) StreamOption {
	return func(h *streamHeaders) {
		h.disposition = mime.FormatMediaType("inline", map[string]string{"filename": filename})
	}
}

func WithContentLength(n int64) StreamOption {
	return func(h *streamHeaders) { h.contentLength = n }
}

type readerResponse struct {
	body io.ReadCloser
	hdr  streamHeaders
}

func (s readerResponse) Render(w http.ResponseWriter, r *http.Request) error {
	defer s.body.Close()
	s.hdr.write(w)
	w.WriteHeader(http.StatusOK)
	_, err := io.Copy(w, s.body)
	return err
}

// Stream copies body to the client and closes it.
func Stream(body io.ReadCloser, contentType string, opts ...StreamOption) Response {
	hdr := streamHeaders{contentType: contentType}
	for _, opt := range opts {
		opt(&hdr)
	}
	return readerResponse{body: body, hdr: hdr}
}

type writerResponse struct {
	fn  func(w io.Writer) error
	hdr streamHeaders
}

func (s writerResponse) Render(w http.ResponseWriter, r *http.Request) error {
	s.hdr.write(w)
	w.WriteHeader(http.StatusOK)
	return s.fn(w)
}

// Writer responds 200 and lets fn produce the body. Headers are sent
// before fn runs, so fn errors can only be logged.
func Writer(contentType string, fn func(w io.Writer) error, opts ...StreamOption) Response {
	hdr := streamHeaders{contentType: contentType}
	for _, opt := range opts {
		opt(&hdr)
	}
	return writerResponse{fn: fn, hdr: hdr}
}

type redirectResponse struct {
	url  string
	code int
}

func (r redirectResponse) Render(w http.ResponseWriter, req *http.Request) error {
	http.Redirect(w, req, r.url, r.code)
	return nil
}

// Redirect responds with a temporary redirect to url.
func Redirect(url string) Response {
	return redirectResponse{url: url, code: http.StatusTemporaryRedirect}
}
