package extractors

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

// spreadsheetRowsPerBlock caps how many rows are folded into one text block
// before the chunker sees it, so a single block stays within a sane
// embedding-input size even for wide, many-row sheets.
const spreadsheetRowsPerBlock = 50

// SpreadsheetExtractor parses CSV (and CSV-compatible XLS/XLSX exports) row
// by row, grouping rows into blocks tagged with the row range they cover.
type SpreadsheetExtractor struct{}

func NewSpreadsheetExtractor() *SpreadsheetExtractor { return &SpreadsheetExtractor{} }

func (e *SpreadsheetExtractor) Extract(ctx context.Context, filename string, data []byte) ([]rag.TextBlock, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("spreadsheet extractor: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	body := rows[1:]

	var blocks []rag.TextBlock
	for start := 0; start < len(body); start += spreadsheetRowsPerBlock {
		end := start + spreadsheetRowsPerBlock
		if end > len(body) {
			end = len(body)
		}
		var sb strings.Builder
		sb.WriteString(strings.Join(header, ", "))
		sb.WriteString("\n")
		for _, row := range body[start:end] {
			sb.WriteString(strings.Join(row, ", "))
			sb.WriteString("\n")
		}
		blocks = append(blocks, rag.TextBlock{
			Content: strings.TrimRight(sb.String(), "\n"),
			Metadata: rag.Metadata{
				"file_type": rag.StringScalar("csv"),
				"row_range": rag.StringScalar(fmt.Sprintf("%d-%d", start+1, end)),
			},
		})
	}
	return blocks, nil
}
