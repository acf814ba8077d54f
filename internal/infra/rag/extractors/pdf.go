package extractors

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dslipak/pdf"
	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

// PDFExtractor extracts plain text page by page, inserting an HTML-comment
// page marker between pages so the chunker can later assign a page_number
// to each chunk it produces (AssignPDFPageNumbers strips the markers back
// out before the chunk is stored).
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

func (e *PDFExtractor) Extract(ctx context.Context, filename string, data []byte) ([]rag.TextBlock, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("pdf extractor: %w", err)
	}

	var buf bytes.Buffer
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		fmt.Fprintf(&buf, "<!-- PAGE %d -->\n%s\n", i, text)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("pdf extractor: no extractable text in %s", filename)
	}

	return []rag.TextBlock{{
		Content:  buf.String(),
		Metadata: rag.Metadata{"file_type": rag.StringScalar("pdf")},
	}}, nil
}
