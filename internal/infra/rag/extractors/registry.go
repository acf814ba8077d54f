// Package extractors implements the format-specific text extractors the
// Ingestion Pipeline dispatches to by file extension. These are bounded
// transformation wrappers around real parsing libraries — the spec treats
// the extraction step itself as an external collaborator whose interface we
// pin, not a component we re-specify in depth.
package extractors

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

// Registry dispatches to an Extractor by file extension.
type Registry struct {
	byExt map[string]rag.Extractor
}

// NewRegistry builds the default registry covering every format named in
// §4.3: PDF, DOCX, spreadsheets, code, Markdown, plain text, images and
// audio/video (the latter two as bounded stub wrappers — OCR and speech
// transcription are external services this module does not re-implement).
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]rag.Extractor)}

	text := NewTextExtractor()
	md := NewMarkdownExtractor()
	code := NewCodeExtractor()
	csv := NewSpreadsheetExtractor()
	pdf := NewPDFExtractor()
	docx := NewDOCXExtractor()
	image := NewImageExtractor()
	audio := NewAudioExtractor()

	r.byExt[""] = text
	r.byExt["txt"] = text
	r.byExt["md"] = md
	r.byExt["markdown"] = md
	r.byExt["csv"] = csv
	r.byExt["xlsx"] = csv
	r.byExt["xls"] = csv
	r.byExt["pdf"] = pdf
	r.byExt["docx"] = docx
	r.byExt["png"] = image
	r.byExt["jpg"] = image
	r.byExt["jpeg"] = image
	r.byExt["mp3"] = audio
	r.byExt["wav"] = audio
	r.byExt["mp4"] = audio

	for _, ext := range []string{"go", "py", "js", "ts", "java", "c", "cpp", "rs", "rb"} {
		r.byExt[ext] = code
	}
	return r
}

// ExtractorFor resolves an extractor and a normalized file_type tag by
// extension. A filename without an extension resolves to the plain text
// extractor (file_type "txt"); an unregistered extension is an error.
func (r *Registry) ExtractorFor(filename string) (rag.Extractor, string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if e, ok := r.byExt[ext]; ok {
		ft := ext
		if ft == "" {
			ft = "txt"
		}
		return e, ft, nil
	}
	return nil, "", fmt.Errorf("unsupported file type: %q", ext)
}

var _ rag.ExtractorRegistry = (*Registry)(nil)
