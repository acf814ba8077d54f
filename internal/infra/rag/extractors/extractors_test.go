package extractors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ExtractorForDispatchesByExtension(t *testing.T) {
	r := NewRegistry()

	_, ft, err := r.ExtractorFor("report.PDF")
	require.NoError(t, err)
	assert.Equal(t, "pdf", ft)

	_, ft, err = r.ExtractorFor("main.go")
	require.NoError(t, err)
	assert.Equal(t, "go", ft)

	_, ft, err = r.ExtractorFor("README")
	require.NoError(t, err)
	assert.Equal(t, "txt", ft, "an extensionless filename falls back to plain text")

	_, ft, err = r.ExtractorFor("notes.md")
	require.NoError(t, err)
	assert.Equal(t, "md", ft)
}

func TestRegistry_ExtractorForUnsupportedExtensionErrors(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.ExtractorFor("archive.zip")
	assert.Error(t, err)
}

func TestTextExtractor_WrapsWholeFileAsOneBlock(t *testing.T) {
	e := NewTextExtractor()
	blocks, err := e.Extract(context.Background(), "a.txt", []byte("hello world"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "hello world", blocks[0].Content)
	ft, _ := blocks[0].Metadata.GetString("file_type")
	assert.Equal(t, "txt", ft)
}

func TestMarkdownExtractor_SplitsByHeaderIntoSections(t *testing.T) {
	e := NewMarkdownExtractor()
	doc := "# Intro\nfirst section body\n\n## Details\nsecond section body\n"
	blocks, err := e.Extract(context.Background(), "doc.md", []byte(doc))
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	h1, _ := blocks[0].Metadata.GetString("section_header")
	assert.Equal(t, "Intro", h1)
	assert.Contains(t, blocks[0].Content, "first section body")

	h2, _ := blocks[1].Metadata.GetString("section_header")
	assert.Equal(t, "Details", h2)
}

func TestMarkdownExtractor_NoHeadersReturnsSingleBlock(t *testing.T) {
	e := NewMarkdownExtractor()
	blocks, err := e.Extract(context.Background(), "doc.md", []byte("just plain prose, no headers"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "just plain prose, no headers", blocks[0].Content)
}

func TestCodeExtractor_TagsLanguageFromExtension(t *testing.T) {
	e := NewCodeExtractor()
	blocks, err := e.Extract(context.Background(), "main.py", []byte("print('hi')"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	lang, _ := blocks[0].Metadata.GetString("language")
	assert.Equal(t, "python", lang)
}

func TestLanguageForFilename_UnknownExtensionFallsBack(t *testing.T) {
	assert.Equal(t, "unknown", languageForFilename("data.xyz"))
	assert.Equal(t, "go", languageForFilename("main.go"))
}

func TestSpreadsheetExtractor_GroupsRowsIntoBlocksWithHeaderRepeated(t *testing.T) {
	e := NewSpreadsheetExtractor()
	csv := "name,age\nalice,30\nbob,40\n"
	blocks, err := e.Extract(context.Background(), "people.csv", []byte(csv))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0].Content, "name, age")
	assert.Contains(t, blocks[0].Content, "alice, 30")
	assert.Contains(t, blocks[0].Content, "bob, 40")
	rowRange, _ := blocks[0].Metadata.GetString("row_range")
	assert.Equal(t, "1-2", rowRange)
}

func TestSpreadsheetExtractor_SplitsAcrossRowsPerBlock(t *testing.T) {
	e := NewSpreadsheetExtractor()
	csvText := "col\n"
	for i := 0; i < 120; i++ {
		csvText += "v\n"
	}
	blocks, err := e.Extract(context.Background(), "big.csv", []byte(csvText))
	require.NoError(t, err)
	assert.Len(t, blocks, 3)
}

func TestSpreadsheetExtractor_EmptyFileReturnsNoBlocks(t *testing.T) {
	e := NewSpreadsheetExtractor()
	blocks, err := e.Extract(context.Background(), "empty.csv", []byte(""))
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestImageExtractor_ReturnsPlaceholderBlock(t *testing.T) {
	e := NewImageExtractor()
	blocks, err := e.Extract(context.Background(), "photo.png", []byte{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0].Content, "photo.png")
	ft, _ := blocks[0].Metadata.GetString("file_type")
	assert.Equal(t, "image", ft)
}

func TestAudioExtractor_ReturnsPlaceholderBlock(t *testing.T) {
	e := NewAudioExtractor()
	blocks, err := e.Extract(context.Background(), "clip.mp3", []byte{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	ft, _ := blocks[0].Metadata.GetString("file_type")
	assert.Equal(t, "audio", ft)
}

func TestStripDocxTags_RemovesResidualXML(t *testing.T) {
	in := "<w:p>Hello <w:r>world</w:r></w:p>"
	assert.Equal(t, "Hello world", stripDocxTags(in))
}

func TestPDFExtractor_InvalidDataReturnsError(t *testing.T) {
	e := NewPDFExtractor()
	_, err := e.Extract(context.Background(), "broken.pdf", []byte("not a pdf"))
	assert.Error(t, err)
}

func TestDOCXExtractor_InvalidDataReturnsError(t *testing.T) {
	e := NewDOCXExtractor()
	_, err := e.Extract(context.Background(), "broken.docx", []byte("not a docx"))
	assert.Error(t, err)
}
