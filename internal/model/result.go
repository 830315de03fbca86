package model

// ResultKind tags how a Task's output is carried: embedded inline in the
// result payload, or written out as a file the caller must fetch.
type ResultKind string

const (
	ResultInline ResultKind = "inline"
	ResultFile   ResultKind = "file"
)

// DocStatus is the per-document outcome the engine reports for one source
// within a batch, distinct from the Task-level Status.
type DocStatus string

const (
	DocSuccess DocStatus = "success"
	DocFailure DocStatus = "failure"
	DocSkipped DocStatus = "skipped"
)

// Document is one converted output, prior to assembly into a Result. Stem
// is the source's base filename without extension, used to name ZIP
// members. Formats holds the rendered bytes for each requested output
// format ("md", "html", "text", "doctags", "json"); the "json" entry is a
// complete DoclingDocument-shaped JSON payload. Timings holds the
// engine's per-stage profile in seconds, keyed by stage name.
type Document struct {
	Stem    string
	Status  DocStatus
	Errors  []string
	Formats map[string][]byte
	Timings map[string]float64
}

// Result is the terminal output of a Task once assembled by the Response
// Assembler. Exactly one of Inline or FilePath is meaningful, selected by
// Kind.
type Result struct {
	Kind     ResultKind     `json:"kind"`
	Inline   map[string]any `json:"inline,omitempty"`
	FilePath string         `json:"-"`
	FileName string         `json:"file_name,omitempty"`
}

// ProcessingMeta tracks per-document progress within a single Task, fed by
// the workflow engine's progress callbacks.
type ProcessingMeta struct {
	NumDocs      int `json:"num_docs"`
	NumProcessed int `json:"num_processed"`
	NumSucceeded int `json:"num_succeeded"`
	NumFailed    int `json:"num_failed"`
}

// Done reports whether every document has reported a terminal outcome.
func (m ProcessingMeta) Done() bool {
	return m.NumDocs > 0 && m.NumProcessed >= m.NumDocs
}
