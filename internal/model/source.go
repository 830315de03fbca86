package model

// SourceKind tags which variant of Source is populated. Workers match on
// this tag rather than relying on dynamic dispatch.
type SourceKind string

const (
	SourceHTTP   SourceKind = "http"
	SourceFile   SourceKind = "file"
	SourceStream SourceKind = "stream"
)

// HTTPSource is a document to be fetched from a URL.
type HTTPSource struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// FileSource is an inline base64-encoded document blob.
type FileSource struct {
	Base64   string `json:"base64_string"`
	Filename string `json:"filename"`
}

// DocumentStream is an in-memory byte stream, used internally once a
// FileSource (or a multipart upload) has been flattened for the engine.
type DocumentStream struct {
	Name  string `json:"name"`
	Bytes []byte `json:"-"`
}

// Source is a tagged union of the three input variants a Task can carry.
// Exactly one of HTTP/File/Stream is populated, matching Kind.
type Source struct {
	Kind   SourceKind      `json:"kind"`
	HTTP   *HTTPSource     `json:"http_source,omitempty"`
	File   *FileSource     `json:"file_source,omitempty"`
	Stream *DocumentStream `json:"-"`
}

// NewHTTPSource builds a Source wrapping an HTTP URL fetch.
func NewHTTPSource(url string, headers map[string]string) Source {
	return Source{Kind: SourceHTTP, HTTP: &HTTPSource{URL: url, Headers: headers}}
}

// NewFileSource builds a Source wrapping an inline base64 blob.
func NewFileSource(base64Str, filename string) Source {
	return Source{Kind: SourceFile, File: &FileSource{Base64: base64Str, Filename: filename}}
}

// NewStreamSource builds a Source wrapping an already-decoded byte stream,
// e.g. from a multipart upload or a flattened FileSource.
func NewStreamSource(name string, data []byte) Source {
	return Source{Kind: SourceStream, Stream: &DocumentStream{Name: name, Bytes: data}}
}

// IsHTTP reports whether this source is an HTTP URL reference.
func (s Source) IsHTTP() bool { return s.Kind == SourceHTTP && s.HTTP != nil }

// FilterHTTP returns only the HTTP-variant sources from a slice, preserving
// order. Used by the Remote Orchestrator, which does not support file
// sources.
func FilterHTTP(sources []Source) []Source {
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.IsHTTP() {
			out = append(out, s)
		}
	}
	return out
}
