package convert

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zhoukaigo/docling-serve/internal/logger"
	"github.com/zhoukaigo/docling-serve/internal/model"
	"github.com/zhoukaigo/docling-serve/internal/scratch"
)

// formatExt maps a requested output format name to the file extension used
// inside a ZIP archive. "text" is the one format whose name and extension
// diverge.
var formatExt = map[string]string{
	"json":    "json",
	"html":    "html",
	"md":      "md",
	"text":    "txt",
	"doctags": "doctags",
}

// ErrDocumentSkipped is returned (wrapping the per-document errors) when a
// single-document request comes back SKIPPED; the handler maps this to 400.
type ErrDocumentSkipped struct {
	Errors []string
}

func (e *ErrDocumentSkipped) Error() string {
	return fmt.Sprintf("convert: document skipped: %v", e.Errors)
}

// ErrDocumentFailed is returned when a single-document request comes back
// FAILURE; the handler maps this to 500.
type ErrDocumentFailed struct {
	Errors []string
}

func (e *ErrDocumentFailed) Error() string {
	return fmt.Sprintf("convert: document failed: %v", e.Errors)
}

// Assemble turns docs into a Result per the decision table: a single
// successful document with return_as_file=false becomes an inline JSON
// body (a single SKIPPED or FAILURE document in that case returns
// ErrDocumentSkipped or ErrDocumentFailed instead); every other case
// becomes a ZIP file response under the task's scratch directory. started marks when conversion began, for the
// processing_time field of an inline response.
func Assemble(store *scratch.Store, taskID string, docs []model.Document, opts model.Options, started time.Time) (*model.Result, error) {
	if len(docs) == 1 && !opts.ReturnAsFile {
		return assembleInline(docs[0], started)
	}
	return assembleZip(store, taskID, docs, opts)
}

func assembleInline(doc model.Document, started time.Time) (*model.Result, error) {
	switch doc.Status {
	case model.DocSkipped:
		return nil, &ErrDocumentSkipped{Errors: doc.Errors}
	case model.DocFailure:
		return nil, &ErrDocumentFailed{Errors: doc.Errors}
	}

	content := map[string]any{}
	for format, bytes := range doc.Formats {
		key := format + "_content"
		if format == "json" {
			var parsed any
			if err := json.Unmarshal(bytes, &parsed); err != nil {
				return nil, fmt.Errorf("convert: parse json render: %w", err)
			}
			content[key] = parsed
		} else {
			content[key] = string(bytes)
		}
	}

	return &model.Result{
		Kind: model.ResultInline,
		Inline: map[string]any{
			"document":        content,
			"status":          string(doc.Status),
			"errors":          doc.Errors,
			"processing_time": time.Since(started).Seconds(),
			"timings":         doc.Timings,
		},
	}, nil
}

func assembleZip(store *scratch.Store, taskID string, docs []model.Document, opts model.Options) (*model.Result, error) {
	outputsDir, err := store.OutputsDir(taskID)
	if err != nil {
		return nil, err
	}

	succeeded := 0
	for _, doc := range docs {
		if doc.Status != model.DocSuccess {
			logger.Worker.Warn("document not converted", "task_id", taskID, "stem", doc.Stem, "status", doc.Status, "errors", doc.Errors)
			if opts.AbortOnError {
				return nil, &ErrDocumentFailed{Errors: doc.Errors}
			}
			continue
		}
		if err := writeDocumentFiles(outputsDir, doc); err != nil {
			return nil, err
		}
		succeeded++
	}

	zipPath := store.ZipPath(taskID)
	if err := zipDir(outputsDir, zipPath); err != nil {
		return nil, err
	}

	return &model.Result{
		Kind:     model.ResultFile,
		FilePath: zipPath,
		FileName: "converted_docs.zip",
	}, nil
}

func writeDocumentFiles(outputsDir string, doc model.Document) error {
	for format, bytes := range doc.Formats {
		ext, ok := formatExt[format]
		if !ok {
			ext = format
		}
		path := filepath.Join(outputsDir, fmt.Sprintf("%s.%s", doc.Stem, ext))
		if err := os.WriteFile(path, bytes, 0o600); err != nil {
			return fmt.Errorf("convert: write %s: %w", path, err)
		}
	}
	return nil
}

func zipDir(dir, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("convert: create zip: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("convert: read outputs dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addZipEntry(zw, dir, entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

func addZipEntry(zw *zip.Writer, dir, name string) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("convert: open %s: %w", name, err)
	}
	defer f.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("convert: zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("convert: copy %s into zip: %w", name, err)
	}
	return nil
}
