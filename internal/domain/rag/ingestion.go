package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ExtractorRegistry resolves a format-specific Extractor by file extension.
type ExtractorRegistry interface {
	ExtractorFor(filename string) (Extractor, string, error) // extractor, file_type, error
}

// Pipeline implements the Ingestion Pipeline: dedup by content hash,
// extract, chunk, enrich-for-embedding, batch embed, store.
type Pipeline struct {
	Store      VectorStore
	Embedder   Embedder
	Registry   ExtractorRegistry
	Logger     *slog.Logger
}

func NewPipeline(store VectorStore, embedder Embedder, registry ExtractorRegistry, logger *slog.Logger) *Pipeline {
	return &Pipeline{Store: store, Embedder: embedder, Registry: registry, Logger: logger}
}

// IngestFile runs the full pipeline for raw file bytes.
func (p *Pipeline) IngestFile(ctx context.Context, filename string, data []byte, collection string) IngestResult {
	hash := sha256.Sum256(data)
	contentHash := hex.EncodeToString(hash[:])

	if existing, found, err := p.findDuplicate(ctx, collection, contentHash); err != nil {
		return errorResult(filename, collection, contentHash, err)
	} else if found {
		return IngestResult{
			DocumentID: existing, Filename: filename, Collection: collection,
			ContentHash: contentHash, Status: JobDuplicate,
		}
	}

	extractor, fileType, err := p.Registry.ExtractorFor(filename)
	if err != nil {
		return errorResult(filename, collection, contentHash, err)
	}
	blocks, err := extractor.Extract(ctx, filename, data)
	if err != nil {
		return errorResult(filename, collection, contentHash, err)
	}

	return p.ingestBlocks(ctx, blocks, filename, fileType, collection, contentHash)
}

// IngestTextBlocks ingests pre-extracted blocks directly (web, video
// transcripts) — it skips the file-based extractor step.
func (p *Pipeline) IngestTextBlocks(ctx context.Context, blocks []TextBlock, sourceName, collection string) IngestResult {
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString(b.Content)
	}
	hash := sha256.Sum256([]byte(sb.String()))
	contentHash := hex.EncodeToString(hash[:])

	if existing, found, err := p.findDuplicate(ctx, collection, contentHash); err != nil {
		return errorResult(sourceName, collection, contentHash, err)
	} else if found {
		return IngestResult{
			DocumentID: existing, Filename: sourceName, Collection: collection,
			ContentHash: contentHash, Status: JobDuplicate,
		}
	}

	return p.ingestBlocks(ctx, blocks, sourceName, "url", collection, contentHash)
}

func (p *Pipeline) findDuplicate(ctx context.Context, collection, contentHash string) (string, bool, error) {
	existing, err := p.Store.Get(ctx, collection, MetadataFilter{"content_hash": contentHash}, 1)
	if err != nil {
		return "", false, err
	}
	if len(existing) == 0 {
		return "", false, nil
	}
	return existing[0].Metadata.DocumentID(), true, nil
}

func (p *Pipeline) ingestBlocks(ctx context.Context, blocks []TextBlock, sourceName, fileType, collection, contentHash string) IngestResult {
	documentID := uuid.NewString()

	var allChunks []ChunkCandidate
	for _, block := range blocks {
		ft, _ := block.Metadata.GetString("file_type")
		if ft == "" {
			ft = fileType
		}
		chunker := ChunkerForFileType(ft)
		candidates := chunker.Chunk(block.Content, block.Metadata)
		if ft == "pdf" {
			candidates = AssignPDFPageNumbers(block.Content, candidates)
		}
		allChunks = append(allChunks, candidates...)
	}

	if len(allChunks) == 0 {
		if p.Logger != nil {
			p.Logger.Warn("no chunks created", "source", sourceName)
		}
		return IngestResult{
			DocumentID: documentID, Filename: sourceName, FileType: fileType,
			Collection: collection, ContentHash: contentHash, Status: JobEmpty,
		}
	}

	enrichedTexts := make([]string, len(allChunks))
	for i, c := range allChunks {
		enrichedTexts[i] = buildEnrichedEmbeddingText(c)
	}
	embeddings, err := p.Embedder.EmbedBatch(ctx, enrichedTexts)
	if err != nil {
		return errorResult(sourceName, collection, contentHash, err)
	}

	chunks := make([]Chunk, len(allChunks))
	for i, c := range allChunks {
		meta := make(Metadata, len(c.Metadata)+4)
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta["document_id"] = StringScalar(documentID)
		meta["source_file"] = StringScalar(sourceName)
		meta["content_hash"] = StringScalar(contentHash)
		meta["chunk_index"] = IntScalar(int64(i))
		meta["total_chunks"] = IntScalar(int64(len(allChunks)))

		chunks[i] = Chunk{
			ID:        ChunkID(documentID, i),
			Content:   c.Content,
			Embedding: embeddings[i],
			Metadata:  meta,
		}
	}

	if err := p.Store.GetOrCreateCollection(ctx, collection, p.Embedder.Dimension()); err != nil {
		return errorResult(sourceName, collection, contentHash, err)
	}
	if err := p.Store.Add(ctx, collection, chunks); err != nil {
		return errorResult(sourceName, collection, contentHash, err)
	}

	return IngestResult{
		DocumentID:    documentID,
		Filename:      sourceName,
		FileType:      fileType,
		ChunksCreated: len(chunks),
		Collection:    collection,
		ContentHash:   contentHash,
		Status:        JobSuccess,
	}
}

// buildEnrichedEmbeddingText prepends a `|`-separated header summarizing
// source/section/title/page, in a consistent order, so the embedder gets
// disambiguating context the reader never sees (the plain form is what
// gets stored).
func buildEnrichedEmbeddingText(c ChunkCandidate) string {
	var parts []string
	if v, ok := c.Metadata.GetString("source_file"); ok && v != "" {
		parts = append(parts, v)
	}
	if v, ok := c.Metadata.GetString("section_header"); ok && v != "" {
		parts = append(parts, v)
	}
	if v, ok := c.Metadata.GetString("title"); ok && v != "" {
		parts = append(parts, v)
	}
	if v, ok := c.Metadata.GetInt("page_number"); ok && v > 0 {
		parts = append(parts, fmt.Sprintf("page %d", v))
	}
	if len(parts) == 0 {
		return c.Content
	}
	return strings.Join(parts, " | ") + "\n\n" + c.Content
}

func errorResult(filename, collection, contentHash string, err error) IngestResult {
	return IngestResult{
		Filename: filename, Collection: collection, ContentHash: contentHash,
		Status: JobError, Error: err.Error(),
	}
}

func fileExt(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}
