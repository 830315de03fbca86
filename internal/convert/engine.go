// Package convert hosts the collaborators around the document-conversion
// engine: the opaque Converter/Factory boundary, a bounded cache of
// prepared converter instances keyed by options fingerprint, and the
// Response Assembler that turns engine output into either an inline JSON
// body or a ZIP file response.
package convert

import (
	"context"
	"errors"

	"github.com/zhoukaigo/docling-serve/internal/model"
)

// ErrUnavailableEngine is returned by Cache.GetConverter, wrapping the
// Factory's error, when a Factory cannot build a Converter (for example
// because the requested OCR/VLM engine is not installed). Handlers
// translate this to a 400.
var ErrUnavailableEngine = errors.New("convert: requested engine is unavailable")

// Converter is a prepared engine instance bound to one Options snapshot.
// Building one is expensive (model loads, pipeline warm-up); running it is
// cheap and may be called many times while it sits in the Cache.
type Converter interface {
	// Convert runs the engine synchronously over sources, returning one
	// Document per source in order, each carrying its per-stage Timings.
	// A per-document failure is reported on that Document's Status and
	// Errors fields,
	// not as a returned error; Convert itself only errors for conditions
	// that abort the whole batch.
	Convert(ctx context.Context, sources []model.Source) ([]model.Document, error)

	// Close releases any engine-owned resources (model weights, native
	// handles). Called by the Cache on eviction, whether or not an
	// in-flight worker still holds the instance.
	Close() error
}

// Factory builds Converter instances from a normalized Options snapshot.
// This is the seam to the real conversion engine, which is out of scope
// per the service's design: production wiring supplies a Factory backed
// by the actual library; tests supply a fake.
type Factory interface {
	Build(ctx context.Context, opts model.Options) (Converter, error)
}
