// Package passthrough is the default convert.Factory wired into main.go.
// It fetches each source's bytes and renders the requested output formats
// without any real OCR/layout model, so the orchestration layer
// (queueing, caching, assembly, notification) has something real to drive
// end to end. A production deployment swaps this Factory for one backed
// by the actual docling engine; nothing else in the service depends on
// which one is wired in.
package passthrough

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/zhoukaigo/docling-serve/internal/convert"
	"github.com/zhoukaigo/docling-serve/internal/model"
)

// allowedOCREngines enumerates the OCR engine names the configuration
// schema recognizes; anything else fails Build, which convert.Cache
// reports as convert.ErrUnavailableEngine.
var allowedOCREngines = map[string]bool{
	"easyocr":   true,
	"tesserocr": true,
	"rapidocr":  true,
	"ocrmac":    true,
}

// Factory builds passthrough Converters. HTTPClient fetches HTTP sources;
// a nil HTTPClient uses http.DefaultClient. MaxFileSize and MaxNumPages
// are per-document guards (MAX_FILE_SIZE, MAX_NUM_PAGES): a document
// exceeding either is reported SKIPPED rather than converted. Zero means
// unbounded.
type Factory struct {
	HTTPClient  *http.Client
	MaxFileSize int64
	MaxNumPages int
}

// Build validates opts and returns a Converter bound to them. Only the
// OCR-engine field is validated here: a requested engine that is not
// installed fails construction.
func (f *Factory) Build(ctx context.Context, opts model.Options) (convert.Converter, error) {
	norm := opts.Normalize()
	if norm.DoOCR && !allowedOCREngines[norm.OCREngine] {
		return nil, fmt.Errorf("ocr engine %q is not installed", norm.OCREngine)
	}
	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &converter{client: client, opts: norm, maxFileSize: f.MaxFileSize, maxNumPages: f.MaxNumPages}, nil
}

type converter struct {
	client      *http.Client
	opts        model.Options
	maxFileSize int64
	maxNumPages int
}

func (c *converter) Close() error { return nil }

// Convert fetches each source's raw bytes and renders every requested
// output format from them. Per-source fetch failures are reported on
// that Document's Status/Errors rather than aborting the batch; the
// abort-on-error decision lives in the Response Assembler, not here.
func (c *converter) Convert(ctx context.Context, sources []model.Source) ([]model.Document, error) {
	docs := make([]model.Document, len(sources))
	for i, src := range sources {
		docs[i] = c.convertOne(ctx, src)
	}
	return docs, nil
}

func (c *converter) convertOne(ctx context.Context, src model.Source) model.Document {
	if c.opts.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DocumentTimeout)
		defer cancel()
	}

	timings := make(map[string]float64, 2)

	fetchStart := time.Now()
	name, data, err := c.fetch(ctx, src)
	timings["fetch"] = time.Since(fetchStart).Seconds()
	stem := stemOf(name)
	if err != nil {
		return model.Document{Stem: stem, Status: model.DocFailure, Errors: []string{err.Error()}, Timings: timings}
	}

	if c.maxFileSize > 0 && int64(len(data)) > c.maxFileSize {
		return model.Document{
			Stem:    stem,
			Status:  model.DocSkipped,
			Errors:  []string{fmt.Sprintf("document is %d bytes, above the %d byte limit", len(data), c.maxFileSize)},
			Timings: timings,
		}
	}
	if c.maxNumPages > 0 {
		if pages := strings.Count(string(data), "\f") + 1; pages > c.maxNumPages {
			return model.Document{
				Stem:    stem,
				Status:  model.DocSkipped,
				Errors:  []string{fmt.Sprintf("document has %d pages, above the %d page limit", pages, c.maxNumPages)},
				Timings: timings,
			}
		}
	}

	renderStart := time.Now()
	formats := make(map[string][]byte, len(c.opts.ToFormats))
	for _, f := range c.opts.ToFormats {
		rendered, err := c.render(f, stem, data)
		if err != nil {
			return model.Document{Stem: stem, Status: model.DocFailure, Errors: []string{err.Error()}, Timings: timings}
		}
		formats[f] = rendered
	}
	timings["render"] = time.Since(renderStart).Seconds()
	return model.Document{Stem: stem, Status: model.DocSuccess, Formats: formats, Timings: timings}
}

func (c *converter) fetch(ctx context.Context, src model.Source) (string, []byte, error) {
	switch {
	case src.IsHTTP():
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.HTTP.URL, nil)
		if err != nil {
			return src.HTTP.URL, nil, fmt.Errorf("build request: %w", err)
		}
		for k, v := range src.HTTP.Headers {
			req.Header.Set(k, v)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return src.HTTP.URL, nil, fmt.Errorf("fetch %s: %w", src.HTTP.URL, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return src.HTTP.URL, nil, fmt.Errorf("fetch %s: status %d", src.HTTP.URL, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return src.HTTP.URL, nil, fmt.Errorf("read %s: %w", src.HTTP.URL, err)
		}
		return src.HTTP.URL, data, nil
	case src.Kind == model.SourceStream && src.Stream != nil:
		return src.Stream.Name, src.Stream.Bytes, nil
	case src.Kind == model.SourceFile && src.File != nil:
		data, err := base64.StdEncoding.DecodeString(src.File.Base64)
		if err != nil {
			return src.File.Filename, nil, fmt.Errorf("decode base64: %w", err)
		}
		return src.File.Filename, data, nil
	default:
		return "", nil, fmt.Errorf("unsupported source kind %q", src.Kind)
	}
}

func (c *converter) render(format, stem string, data []byte) ([]byte, error) {
	text := string(data)
	switch format {
	case "json":
		envelope := map[string]any{
			"schema_name": "DoclingDocument",
			"name":        stem,
			"body":        text,
		}
		return json.Marshal(envelope)
	case "md":
		if c.opts.MdPageBreakPlaceholder != "" {
			text = strings.ReplaceAll(text, "\f", "\n"+c.opts.MdPageBreakPlaceholder+"\n")
		}
		return []byte(text), nil
	case "html":
		return []byte("<html><body><pre>" + text + "</pre></body></html>"), nil
	case "text":
		return data, nil
	case "doctags":
		return []byte("<doctag>" + text + "</doctag>"), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

func stemOf(name string) string {
	if name == "" {
		return "document"
	}
	if u := strings.SplitN(name, "?", 2)[0]; strings.Contains(u, "://") {
		name = path.Base(u)
	} else {
		name = path.Base(name)
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		return "document"
	}
	return stem
}
