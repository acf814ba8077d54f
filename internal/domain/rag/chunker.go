package rag

import (
	"regexp"
	"strings"
)

// MinChunkChars is the threshold below which a chunk is dropped as noise
// (stray page numbers, running headers).
const MinChunkChars = 50

// RecursiveChunker splits text by trying progressively smaller separators,
// then greedily re-merges the pieces up to ChunkSize, restarting each new
// chunk from a sentence-aware overlap of the previous one.
type RecursiveChunker struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// NewRecursiveChunker builds the general-prose chunker: 1000/200 over
// ["\n\n", "\n", ". ", " "].
func NewRecursiveChunker() *RecursiveChunker {
	return &RecursiveChunker{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Separators:   []string{"\n\n", "\n", ". ", " "},
	}
}

// NewCodeChunker builds the code-aware variant: larger chunks, no sentence
// separators (code has no sentences).
func NewCodeChunker() *RecursiveChunker {
	return &RecursiveChunker{
		ChunkSize:    1500,
		ChunkOverlap: 300,
		Separators:   []string{"\n\n", "\n"},
	}
}

// NewTabularChunker builds the spreadsheet/CSV variant.
func NewTabularChunker() *RecursiveChunker {
	return &RecursiveChunker{
		ChunkSize:    1200,
		ChunkOverlap: 100,
		Separators:   []string{"\n\n", "\n", ". ", " "},
	}
}

// NewMarkdownChunker reuses the recursive core; the markdown extractor has
// already split the document by headers before chunking runs.
func NewMarkdownChunker() *RecursiveChunker {
	return NewRecursiveChunker()
}

// ChunkerForFileType selects the format-appropriate chunker, per §4.1.
func ChunkerForFileType(fileType string) *RecursiveChunker {
	switch fileType {
	case "md", "markdown":
		return NewMarkdownChunker()
	case "code":
		return NewCodeChunker()
	case "csv", "xlsx", "xls":
		return NewTabularChunker()
	default:
		return NewRecursiveChunker()
	}
}

// Chunk implements the rag.Chunker interface.
func (c *RecursiveChunker) Chunk(text string, base Metadata) []ChunkCandidate {
	pieces := c.splitRecursive(text, c.Separators)
	merged := c.mergeWithOverlap(pieces)

	out := make([]ChunkCandidate, 0, len(merged))
	for i, content := range merged {
		trimmed := strings.TrimSpace(content)
		if len(trimmed) < MinChunkChars {
			continue
		}
		meta := make(Metadata, len(base)+2)
		for k, v := range base {
			meta[k] = v
		}
		meta["chunk_index"] = IntScalar(int64(i))
		meta["char_count"] = IntScalar(int64(len(trimmed)))
		out = append(out, ChunkCandidate{Content: trimmed, Metadata: meta})
	}
	return out
}

func (c *RecursiveChunker) splitRecursive(text string, separators []string) []string {
	if len(separators) == 0 {
		return []string{text}
	}
	sep := separators[0]
	rest := separators[1:]
	parts := strings.Split(text, sep)

	var result []string
	for _, part := range parts {
		if len(part) <= c.ChunkSize {
			result = append(result, part)
			continue
		}
		if len(rest) > 0 {
			result = append(result, c.splitRecursive(part, rest)...)
			continue
		}
		for i := 0; i < len(part); i += c.ChunkSize {
			end := i + c.ChunkSize
			if end > len(part) {
				end = len(part)
			}
			result = append(result, part[i:end])
		}
	}
	return result
}

func (c *RecursiveChunker) mergeWithOverlap(pieces []string) []string {
	var chunks []string
	current := ""

	for _, piece := range pieces {
		if len(current)+len(piece) <= c.ChunkSize {
			if current != "" {
				current = strings.TrimSpace(current + " " + piece)
			} else {
				current = piece
			}
			continue
		}
		if current != "" {
			chunks = append(chunks, current)
			overlap := c.sentenceAwareOverlap(current)
			current = strings.TrimSpace(overlap + " " + piece)
		} else {
			current = piece
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// sentenceAwareOverlap extracts overlap that starts at a sentence boundary
// instead of blindly taking the last N characters, so overlap never begins
// mid-word when punctuation is available.
func (c *RecursiveChunker) sentenceAwareOverlap(text string) string {
	if len(text) <= c.ChunkOverlap {
		return text
	}
	zone := text[len(text)-c.ChunkOverlap:]

	best := -1
	for i := 0; i < len(zone)-1; i++ {
		ch := zone[i]
		if (ch == '.' || ch == '!' || ch == '?') && isSentenceSpace(zone[i+1]) {
			best = i + 2
		}
	}
	if best > 0 && best < len(zone)-10 {
		return strings.TrimSpace(zone[best:])
	}

	if nl := strings.IndexByte(zone, '\n'); nl > 0 && nl < len(zone)-10 {
		return strings.TrimSpace(zone[nl+1:])
	}

	return strings.TrimSpace(zone)
}

func isSentenceSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t'
}

var pageMarkerRe = regexp.MustCompile(`<!--\s*PAGE\s+(\d+)\s*-->`)

// AssignPDFPageNumbers locates, for each chunk, the nearest preceding
// "<!-- PAGE N -->" marker in the original marked-up text and records it as
// the chunk's page_number metadata, then strips all markers from the
// returned content. Position is located by the chunk's first 80 characters,
// falling back to 40 if that prefix is not found (the sentence-aware
// overlap can shift a short chunk's exact boundary).
func AssignPDFPageNumbers(markedText string, candidates []ChunkCandidate) []ChunkCandidate {
	markerPositions := pageMarkerRe.FindAllStringSubmatchIndex(markedText, -1)

	out := make([]ChunkCandidate, len(candidates))
	for i, cand := range candidates {
		prefix := cand.Content
		if len(prefix) > 80 {
			prefix = prefix[:80]
		}
		pos := strings.Index(markedText, prefix)
		if pos < 0 && len(cand.Content) > 40 {
			shortPrefix := cand.Content[:40]
			pos = strings.Index(markedText, shortPrefix)
		}

		page := 0
		if pos >= 0 {
			for _, m := range markerPositions {
				markerStart := m[0]
				if markerStart > pos {
					break
				}
				page = atoiSafe(markedText[m[2]:m[3]])
			}
		}

		meta := make(Metadata, len(cand.Metadata)+1)
		for k, v := range cand.Metadata {
			meta[k] = v
		}
		if page > 0 {
			meta["page_number"] = IntScalar(int64(page))
		}
		out[i] = ChunkCandidate{
			Content:  pageMarkerRe.ReplaceAllString(cand.Content, ""),
			Metadata: meta,
		}
	}
	return out
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
