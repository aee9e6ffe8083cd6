package controller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/services"
)

// maxUploadBytes bounds a single uploaded document.
const maxUploadBytes = 32 << 20

// DocumentService is the ingestion side used by the document handlers.
type DocumentService interface {
	Upload(ctx context.Context, filename string, data []byte) (models.UploadResult, error)
	DeleteDocument(ctx context.Context, filename string) error
	ListDocuments(ctx context.Context) ([]string, error)
	RebuildIndex(ctx context.Context, dir string) ([]models.UploadResult, error)
}

// RAGController handles the HTTP requests for the chat API. It depends on the
// services to perform the actual business logic.
type RAGController struct {
	ragService services.RAGService
	documents  DocumentService
	docsDir    string
	log        *slog.Logger
}

// NewRAGController is called from main.go to inject the service dependencies.
func NewRAGController(ragService services.RAGService, documents DocumentService, docsDir string, log *slog.Logger) *RAGController {
	return &RAGController{
		ragService: ragService,
		documents:  documents,
		docsDir:    docsDir,
		log:        log,
	}
}

// Chat is the Gin handler for POST /chat.
func (c *RAGController) Chat(ctx *gin.Context) {
	var req models.ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	response, err := c.ragService.Chat(ctx.Request.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrEmptyInput) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// The error reply has already been stored as the assistant turn.
		c.log.Error("Chat request failed", slog.Any("error", err))
		ctx.JSON(http.StatusInternalServerError, response)
		return
	}
	ctx.JSON(http.StatusOK, response)
}

// GetHistory is the Gin handler for GET /history.
func (c *RAGController) GetHistory(ctx *gin.Context) {
	turns, err := c.ragService.History(ctx.Request.Context())
	if err != nil {
		c.log.Error("Failed to read history", slog.Any("error", err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}
	ctx.JSON(http.StatusOK, turns)
}

// ClearHistory is the Gin handler for POST /clear_history.
func (c *RAGController) ClearHistory(ctx *gin.Context) {
	if err := c.ragService.ClearHistory(ctx.Request.Context()); err != nil {
		c.log.Error("Failed to clear history", slog.Any("error", err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear history"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// GetDocuments is the Gin handler for GET /documents.
func (c *RAGController) GetDocuments(ctx *gin.Context) {
	docs, err := c.documents.ListDocuments(ctx.Request.Context())
	if err != nil {
		c.log.Error("Failed to list documents", slog.Any("error", err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
		return
	}
	ctx.JSON(http.StatusOK, models.DocumentsResponse{Documents: docs})
}

// UploadDocument is the Gin handler for POST /upload. The multipart field is
// "file".
func (c *RAGController) UploadDocument(ctx *gin.Context) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"status": models.StatusError, "message": "Missing file: " + err.Error()})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": models.StatusError, "message": "File too large"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"status": models.StatusError, "message": err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"status": models.StatusError, "message": err.Error()})
		return
	}

	result, err := c.documents.Upload(ctx.Request.Context(), fileHeader.Filename, data)
	switch {
	case err == nil, errors.Is(err, models.ErrEmptyInput):
		ctx.JSON(http.StatusOK, result)
	case errors.Is(err, models.ErrUnsupportedInput):
		ctx.JSON(http.StatusBadRequest, result)
	default:
		ctx.JSON(http.StatusInternalServerError, result)
	}
}

// DeleteDocument is the Gin handler for POST /delete_doc (form field
// "filename").
func (c *RAGController) DeleteDocument(ctx *gin.Context) {
	filename := ctx.PostForm("filename")
	if filename == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"status": models.StatusError, "message": "filename is required"})
		return
	}
	if err := c.documents.DeleteDocument(ctx.Request.Context(), filename); err != nil {
		c.log.Error("Failed to delete document", slog.String("filename", filename), slog.Any("error", err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"status": models.StatusError, "message": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": models.StatusSuccess, "message": "Deleted " + filename})
}

// RebuildIndex is the Gin handler for POST /rebuild_index. It wipes the
// index and re-ingests the configured docs directory. Other directories are
// only reachable from the rebuild-index command.
func (c *RAGController) RebuildIndex(ctx *gin.Context) {
	results, err := c.documents.RebuildIndex(ctx.Request.Context(), c.docsDir)
	if err != nil {
		c.log.Error("Rebuild failed", slog.String("dir", c.docsDir), slog.Any("error", err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"status": models.StatusError, "message": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": models.StatusSuccess, "documents": results})
}
