package model

import "time"

// Options is the snapshot of conversion parameters attached to a Task at
// enqueue time. It is normalized before being cached or fingerprinted so
// that two requests expressing the same intent in different ways (nil vs.
// empty slice, omitted vs. default value) collapse onto the same cache
// entry and the same fingerprint.
type Options struct {
	ToFormats                []string       `json:"to_formats"`
	ImageExportMode          string         `json:"image_export_mode"`
	MdPageBreakPlaceholder   string         `json:"md_page_break_placeholder"`
	AbortOnError             bool           `json:"abort_on_error"`
	ReturnAsFile             bool           `json:"return_as_file"`
	DoOCR                    bool           `json:"do_ocr"`
	OCREngine                string         `json:"ocr_engine"`
	DoPictureDescription     bool           `json:"do_picture_description"`
	PictureDescriptionPrompt string         `json:"picture_description_prompt"`
	PdfBackend               string         `json:"pdf_backend"`
	Device                   string         `json:"device"`
	ImagesScale              float64        `json:"images_scale"`
	DocumentTimeout          time.Duration  `json:"document_timeout"`
	Params                   map[string]any `json:"params"`
}

// Normalized versions of the enum-ish string fields. Unknown values pass
// through untouched: validation of the inbound request is the httpapi
// layer's job, not the model's.
const (
	DefaultToFormat          = "md"
	DefaultImageExportMode   = "embedded"
	DefaultOCREngine         = "easyocr"
	DefaultPdfBackend        = "dlparse_v4"
	DefaultDevice            = "auto"
	DefaultMdPageBreakMarker = "<!-- page break -->"
	DefaultImagesScale       = 2.0
)

// Normalize fills in the documented defaults and collapses nil collections
// to empty ones, so that two semantically identical Options values always
// compare and hash equal regardless of how the caller built them.
func (o Options) Normalize() Options {
	out := o

	if len(out.ToFormats) == 0 {
		out.ToFormats = []string{DefaultToFormat}
	} else {
		formats := make([]string, len(out.ToFormats))
		copy(formats, out.ToFormats)
		out.ToFormats = formats
	}

	if out.ImageExportMode == "" {
		out.ImageExportMode = DefaultImageExportMode
	}
	if out.MdPageBreakPlaceholder == "" {
		out.MdPageBreakPlaceholder = DefaultMdPageBreakMarker
	}
	if out.OCREngine == "" {
		out.OCREngine = DefaultOCREngine
	}
	if out.PdfBackend == "" {
		out.PdfBackend = DefaultPdfBackend
	}
	if out.Device == "" {
		out.Device = DefaultDevice
	}
	if out.ImagesScale == 0 {
		out.ImagesScale = DefaultImagesScale
	}
	if out.Params == nil {
		out.Params = map[string]any{}
	} else {
		params := make(map[string]any, len(out.Params))
		for k, v := range out.Params {
			params[k] = v
		}
		out.Params = params
	}

	return out
}
