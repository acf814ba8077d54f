package extractors

import (
	"context"
	"regexp"
	"strings"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

// TextExtractor is the identity extractor: the whole file is one block.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

func (e *TextExtractor) Extract(ctx context.Context, filename string, data []byte) ([]rag.TextBlock, error) {
	return []rag.TextBlock{{
		Content:  string(data),
		Metadata: rag.Metadata{"file_type": rag.StringScalar("txt")},
	}}, nil
}

var headerRe = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// MarkdownExtractor splits a document by its headers into sectioned
// blocks, each carrying its nearest heading as section_header — the
// MarkdownChunker then applies the same recursive chunking core to each
// section.
type MarkdownExtractor struct{}

func NewMarkdownExtractor() *MarkdownExtractor { return &MarkdownExtractor{} }

func (e *MarkdownExtractor) Extract(ctx context.Context, filename string, data []byte) ([]rag.TextBlock, error) {
	text := string(data)
	matches := headerRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []rag.TextBlock{{
			Content:  text,
			Metadata: rag.Metadata{"file_type": rag.StringScalar("md")},
		}}, nil
	}

	var blocks []rag.TextBlock
	for i, m := range matches {
		headingStart := m[0]
		contentStart := m[1]
		contentEnd := len(text)
		if i+1 < len(matches) {
			contentEnd = matches[i+1][0]
		}
		heading := strings.TrimSpace(text[m[4]:m[5]])
		body := strings.TrimSpace(text[contentStart:contentEnd])
		if body == "" {
			continue
		}
		_ = headingStart
		blocks = append(blocks, rag.TextBlock{
			Content: body,
			Metadata: rag.Metadata{
				"file_type":      rag.StringScalar("md"),
				"section_header": rag.StringScalar(heading),
			},
		})
	}
	if len(blocks) == 0 {
		return []rag.TextBlock{{
			Content:  text,
			Metadata: rag.Metadata{"file_type": rag.StringScalar("md")},
		}}, nil
	}
	return blocks, nil
}

// CodeExtractor tags the block with its language (derived from the
// extension) so the chunker and retriever can carry that through metadata.
type CodeExtractor struct{}

func NewCodeExtractor() *CodeExtractor { return &CodeExtractor{} }

func (e *CodeExtractor) Extract(ctx context.Context, filename string, data []byte) ([]rag.TextBlock, error) {
	lang := languageForFilename(filename)
	return []rag.TextBlock{{
		Content: string(data),
		Metadata: rag.Metadata{
			"file_type": rag.StringScalar("code"),
			"language":  rag.StringScalar(lang),
		},
	}}, nil
}

func languageForFilename(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".go"):
		return "go"
	case strings.HasSuffix(lower, ".py"):
		return "python"
	case strings.HasSuffix(lower, ".js"):
		return "javascript"
	case strings.HasSuffix(lower, ".ts"):
		return "typescript"
	case strings.HasSuffix(lower, ".java"):
		return "java"
	case strings.HasSuffix(lower, ".rs"):
		return "rust"
	case strings.HasSuffix(lower, ".rb"):
		return "ruby"
	case strings.HasSuffix(lower, ".c"):
		return "c"
	case strings.HasSuffix(lower, ".cpp"):
		return "cpp"
	default:
		return "unknown"
	}
}
