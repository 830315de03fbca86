package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/zhoukaigo/docling-serve/internal/model"
)

// convertRequest is the JSON body accepted by /v1alpha/convert/source[/async]:
// a list of http/file sources plus the options fields.
type convertRequest struct {
	HTTPSources []struct {
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers,omitempty"`
	} `json:"http_sources,omitempty"`
	FileSources []struct {
		Base64   string `json:"base64_string"`
		Filename string `json:"filename"`
	} `json:"file_sources,omitempty"`

	ToFormats                []string       `json:"to_formats,omitempty"`
	ImageExportMode          string         `json:"image_export_mode,omitempty"`
	MdPageBreakPlaceholder   string         `json:"md_page_break_placeholder,omitempty"`
	AbortOnError             bool           `json:"abort_on_error,omitempty"`
	ReturnAsFile             bool           `json:"return_as_file,omitempty"`
	DoOCR                    bool           `json:"do_ocr,omitempty"`
	OCREngine                string         `json:"ocr_engine,omitempty"`
	DoPictureDescription     bool           `json:"do_picture_description,omitempty"`
	PictureDescriptionPrompt string         `json:"picture_description_prompt,omitempty"`
	PdfBackend               string         `json:"pdf_backend,omitempty"`
	Device                   string         `json:"device,omitempty"`
	ImagesScale              float64        `json:"images_scale,omitempty"`
	DocumentTimeout          float64        `json:"document_timeout,omitempty"`
	Params                   map[string]any `json:"params,omitempty"`
}

func decodeConvertRequest(r *http.Request) (convertRequest, error) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return convertRequest{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	if len(req.HTTPSources) == 0 && len(req.FileSources) == 0 {
		return convertRequest{}, fmt.Errorf("at least one of http_sources or file_sources is required")
	}
	return req, nil
}

func (req convertRequest) sources() []model.Source {
	out := make([]model.Source, 0, len(req.HTTPSources)+len(req.FileSources))
	for _, s := range req.HTTPSources {
		out = append(out, model.NewHTTPSource(s.URL, s.Headers))
	}
	for _, s := range req.FileSources {
		out = append(out, model.NewFileSource(s.Base64, s.Filename))
	}
	return out
}

func (req convertRequest) options() model.Options {
	return model.Options{
		ToFormats:                req.ToFormats,
		ImageExportMode:          req.ImageExportMode,
		MdPageBreakPlaceholder:   req.MdPageBreakPlaceholder,
		AbortOnError:             req.AbortOnError,
		ReturnAsFile:             req.ReturnAsFile,
		DoOCR:                    req.DoOCR,
		OCREngine:                req.OCREngine,
		DoPictureDescription:     req.DoPictureDescription,
		PictureDescriptionPrompt: req.PictureDescriptionPrompt,
		PdfBackend:               req.PdfBackend,
		Device:                   req.Device,
		ImagesScale:              req.ImagesScale,
		DocumentTimeout:          time.Duration(req.DocumentTimeout * float64(time.Second)),
		Params:                   req.Params,
	}.Normalize()
}

// multipartSources decodes a multipart/form-data upload's "files" fields
// into Sources, carrying each file's bytes as an in-memory stream the
// same way a flattened FileSource would.
func multipartSources(r *http.Request) ([]model.Source, model.Options, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, model.Options{}, fmt.Errorf("invalid multipart body: %w", err)
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, model.Options{}, fmt.Errorf("at least one file is required")
	}

	sources := make([]model.Source, 0, len(files))
	for _, fh := range files {
		data, err := readMultipartFile(fh)
		if err != nil {
			return nil, model.Options{}, err
		}
		sources = append(sources, model.NewStreamSource(fh.Filename, data))
	}

	req := convertRequest{}
	if v := r.FormValue("to_formats"); v != "" {
		_ = json.Unmarshal([]byte(v), &req.ToFormats)
	}
	req.ReturnAsFile = r.FormValue("return_as_file") == "true"
	req.DoOCR = r.FormValue("do_ocr") == "true"
	req.AbortOnError = r.FormValue("abort_on_error") == "true"
	if v := r.FormValue("document_timeout"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			req.DocumentTimeout = secs
		}
	}

	return sources, req.options(), nil
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %q: %w", fh.Filename, err)
	}
	return data, nil
}
