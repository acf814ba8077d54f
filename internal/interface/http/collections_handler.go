package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

// cleanupScanLimit bounds how many chunks a single cleanup pass inspects;
// collections large enough to exceed it need a repeated call.
const cleanupScanLimit = 50000

// ListCollections returns every known collection with its document/chunk counts.
func (h *Handler) ListCollections(c *gin.Context) {
	collections, err := h.store.ListCollections(c.Request.Context())
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections})
}

type createCollectionRequest struct {
	Name string `json:"name" binding:"required,collname"`
}

// CreateCollection provisions an empty collection ahead of first ingestion.
func (h *Handler) CreateCollection(c *gin.Context) {
	var req createCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	if err := h.store.GetOrCreateCollection(c.Request.Context(), req.Name, h.cfg.VectorDim); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "create_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

// DeleteCollection drops a collection and every chunk in it.
func (h *Handler) DeleteCollection(c *gin.Context) {
	name := c.Param("name")
	if err := h.store.DeleteCollection(c.Request.Context(), name); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "delete_failed", errMessage(err), err))
		return
	}
	c.Status(http.StatusNoContent)
}

// GetDocumentChunks previews a document's stored chunks in order.
func (h *Handler) GetDocumentChunks(c *gin.Context) {
	collection := c.Param("name")
	documentID := c.Param("id")
	limit := parseLimit(c.Query("limit"), 50, 500)

	chunks, err := h.store.Get(c.Request.Context(), collection, rag.MetadataFilter{"document_id": documentID}, limit)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

// CleanupCollection deletes chunks shorter than min_chars, a maintenance
// operation for documents that extracted mostly-empty boilerplate.
func (h *Handler) CleanupCollection(c *gin.Context) {
	collection := c.Param("name")
	minChars, err := strconv.Atoi(c.Query("min_chars"))
	if err != nil || minChars <= 0 {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "min_chars must be a positive integer", nil))
		return
	}

	chunks, err := h.store.Get(c.Request.Context(), collection, rag.MetadataFilter{}, cleanupScanLimit)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}

	var toDelete []string
	for _, chunk := range chunks {
		if len(chunk.Content) < minChars {
			toDelete = append(toDelete, chunk.ID)
		}
	}
	if len(toDelete) > 0 {
		if err := h.store.Delete(c.Request.Context(), collection, toDelete); err != nil {
			abortWithError(c, NewHTTPError(http.StatusInternalServerError, "cleanup_failed", errMessage(err), err))
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"deleted": len(toDelete), "scanned": len(chunks)})
}

type createFolderRequest struct {
	Name     string     `json:"name" binding:"required,max=200"`
	ParentID *uuid.UUID `json:"parent_id"`
}

// CreateFolder adds a folder node to a collection's tree.
func (h *Handler) CreateFolder(c *gin.Context) {
	collection := c.Param("name")
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	folder := rag.Folder{
		ID:         uuid.New(),
		Collection: collection,
		Name:       req.Name,
		ParentID:   req.ParentID,
		CreatedAt:  time.Now(),
	}
	if err := h.folders.Create(c.Request.Context(), folder); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "create_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusCreated, folder)
}

// ListFolders returns every folder in a collection, flat — the client
// reconstructs the tree from parent_id.
func (h *Handler) ListFolders(c *gin.Context) {
	collection := c.Param("name")
	folders, err := h.folders.ListByCollection(c.Request.Context(), collection)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

type moveFolderRequest struct {
	ParentID *uuid.UUID `json:"parent_id"`
}

// MoveFolder reparents a folder, rejecting moves that would create a cycle.
func (h *Handler) MoveFolder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid folder id", err))
		return
	}
	var req moveFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	if err := rag.MoveFolder(c.Request.Context(), h.folders, id, req.ParentID); err != nil {
		status := http.StatusInternalServerError
		code := "move_failed"
		if err == rag.ErrFolderCycle {
			status = http.StatusBadRequest
			code = "folder_cycle"
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteFolder removes a folder node along with every descendant folder;
// documents placed anywhere in the deleted subtree revert to the
// collection root.
func (h *Handler) DeleteFolder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid folder id", err))
		return
	}
	if err := rag.DeleteFolderCascade(c.Request.Context(), h.folders, h.docFolders, id); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "delete_failed", errMessage(err), err))
		return
	}
	c.Status(http.StatusNoContent)
}

func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
