package extractors

import (
	"bytes"
	"context"
	"fmt"
	"regexp"

	"github.com/nguyenthenguyen/docx"
	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

var docxTagRe = regexp.MustCompile(`<[^>]+>`)

// stripDocxTags removes the library's residual XML wrapper tags, leaving
// the run text and paragraph breaks the pipeline's chunker expects.
func stripDocxTags(content string) string {
	return docxTagRe.ReplaceAllString(content, "")
}

// DOCXExtractor pulls the document body text out of a .docx package. It is
// a bounded wrapper: heading styles and layout are not preserved, only the
// paragraph text the library exposes via Editable().GetContent().
type DOCXExtractor struct{}

func NewDOCXExtractor() *DOCXExtractor { return &DOCXExtractor{} }

func (e *DOCXExtractor) Extract(ctx context.Context, filename string, data []byte) ([]rag.TextBlock, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("docx extractor: %w", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	if content == "" {
		return nil, fmt.Errorf("docx extractor: empty document %s", filename)
	}

	return []rag.TextBlock{{
		Content:  stripDocxTags(content),
		Metadata: rag.Metadata{"file_type": rag.StringScalar("docx")},
	}}, nil
}
