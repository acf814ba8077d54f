package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
	"github.com/yanqian/ai-helloworld/internal/infra/rag/urlfetch"
)

const defaultCollection = "default"

// UploadDocument accepts one multipart file, persists the original to
// object storage, and hands ingestion off to the job queue — the caller
// polls GetJob for the outcome.
func (h *Handler) UploadDocument(c *gin.Context) {
	collection, err := resolveCollection(c.PostForm("collection"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", err.Error(), err))
		return
	}
	folderID, err := parseFolderID(c.PostForm("folder_id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", err.Error(), err))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "file is required", err))
		return
	}

	data, err := readUploadedFile(fileHeader, h.cfg.MaxFileMB)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusRequestEntityTooLarge, "file_too_large", err.Error(), err))
		return
	}

	job := h.jobs.Create(fileHeader.Filename, collection)

	storageKey := fmt.Sprintf("uploads/%s/%s", job.ID, fileHeader.Filename)
	if _, err := h.storage.Put(c.Request.Context(), storageKey, data, fileHeader.Header.Get("Content-Type")); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "upload_failed", "failed to persist upload", err))
		return
	}

	payload := map[string]any{
		"job_id":      job.ID,
		"storage_key": storageKey,
		"filename":    fileHeader.Filename,
		"collection":  collection,
	}
	if folderID != nil {
		payload["folder_id"] = folderID.String()
	}
	if err := h.jobQueue.Enqueue(c.Request.Context(), "ingest_document", payload); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "upload_failed", "failed to enqueue ingestion", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": job.Status})
}

// GetJob polls the status of a background ingestion.
func (h *Handler) GetJob(c *gin.Context) {
	job, ok := h.jobs.Get(c.Param("id"))
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "job not found", nil))
		return
	}
	c.JSON(http.StatusOK, job)
}

// UploadBatch processes up to MaxBatchFiles files synchronously, returning
// a per-file result — one file's failure never aborts the others.
func (h *Handler) UploadBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "multipart form required", err))
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "at least one file is required", nil))
		return
	}
	if len(files) > h.cfg.MaxBatchFiles {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "too_many_files", fmt.Sprintf("at most %d files per batch", h.cfg.MaxBatchFiles), nil))
		return
	}
	collection, err := resolveCollection(c.PostForm("collection"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", err.Error(), err))
		return
	}
	folderID, err := parseFolderID(c.PostForm("folder_id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", err.Error(), err))
		return
	}

	results := make([]rag.IngestResult, 0, len(files))
	for _, fh := range files {
		data, err := readUploadedFile(fh, h.cfg.MaxFileMB)
		if err != nil {
			results = append(results, rag.IngestResult{Filename: fh.Filename, Collection: collection, Status: rag.JobError, Error: err.Error()})
			continue
		}
		result := h.pipeline.IngestFile(c.Request.Context(), fh.Filename, data, collection)
		if folderID != nil && result.Status != rag.JobError && h.docFolders != nil {
			if err := h.docFolders.Assign(c.Request.Context(), result.DocumentID, folderID); err != nil {
				h.logger.Error("failed to assign uploaded document to folder", "document_id", result.DocumentID, "error", err)
			}
		}
		results = append(results, result)
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

type uploadURLRequest struct {
	URL        string     `json:"url" binding:"required"`
	Collection string     `json:"collection" binding:"omitempty,collname"`
	FolderID   *uuid.UUID `json:"folder_id"`
}

// UploadURL fetches a remote page (SSRF-guarded) and ingests it
// synchronously as a single document.
func (h *Handler) UploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	collection := collectionOrDefault(req.Collection)

	body, contentType, err := h.fetcher.Fetch(c.Request.Context(), req.URL)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, urlfetch.ErrSSRFBlocked) {
			status = http.StatusServiceUnavailable
		}
		abortWithError(c, NewHTTPError(status, "fetch_failed", errMessage(err), err))
		return
	}

	text := string(body)
	if isHTMLContentType(contentType) {
		md, err := htmltomarkdown.ConvertString(text)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusUnprocessableEntity, "convert_failed", errMessage(err), err))
			return
		}
		text = md
	}

	block := rag.TextBlock{
		Content: text,
		Metadata: rag.SanitizeMetadata(map[string]any{
			"source_file": req.URL,
			"file_type":   "url",
		}),
	}
	result := h.pipeline.IngestTextBlocks(c.Request.Context(), []rag.TextBlock{block}, req.URL, collection)
	if result.Status == rag.JobError {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "ingest_failed", result.Error, nil))
		return
	}
	if req.FolderID != nil && h.docFolders != nil {
		if err := h.docFolders.Assign(c.Request.Context(), result.DocumentID, req.FolderID); err != nil {
			h.logger.Error("failed to assign ingested url document to folder", "document_id", result.DocumentID, "error", err)
		}
	}
	c.JSON(http.StatusOK, result)
}

func readUploadedFile(fh *multipart.FileHeader, maxMB int) ([]byte, error) {
	if maxMB <= 0 {
		maxMB = 20
	}
	maxBytes := int64(maxMB) * 1024 * 1024
	if fh.Size > maxBytes {
		return nil, fmt.Errorf("file exceeds %d MB limit", maxMB)
	}
	file, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	limited := io.LimitReader(file, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("file exceeds %d MB limit", maxMB)
	}
	return data, nil
}

func collectionOrDefault(name string) string {
	if name == "" {
		return defaultCollection
	}
	return name
}

// resolveCollection applies the default collection name and validates the
// result against collectionNamePattern; used by the multipart upload paths,
// which read the collection from a form field rather than a JSON-bound
// struct that validator can check directly.
func resolveCollection(name string) (string, error) {
	collection := collectionOrDefault(name)
	if !validCollectionName(collection) {
		return "", fmt.Errorf("malformed collection name: %q", collection)
	}
	return collection, nil
}

// parseFolderID parses an optional folder id form value; an empty string
// means the document belongs at the collection root.
func parseFolderID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid folder_id: %w", err)
	}
	return &id, nil
}

func isHTMLContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "html")
}
