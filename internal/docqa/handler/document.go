// Package handler provides HTTP handlers for the docqa service.
package handler

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/httputils"
	"github.com/kart-io/docqa/pkg/middleware"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/validator"
)

// DocumentService is the business API used by DocumentHandler.
type DocumentService interface {
	Upload(ctx context.Context, ownerID, filename string, r io.Reader) (*model.Document, error)
	List(ctx context.Context, ownerID string) ([]*model.Document, error)
	Get(ctx context.Context, ownerID, id string) (*model.Document, error)
	Delete(ctx context.Context, ownerID, id string) error
	Retry(ctx context.Context, ownerID, id string) (*model.Document, error)
	Search(ctx context.Context, ownerID string, req biz.QueryRequest) ([]*store.ChunkHit, error)
	Chat(ctx context.Context, ownerID string, req biz.QueryRequest) (*biz.ChatResult, error)
}

var _ DocumentService = (*biz.Service)(nil)

// DocumentHandler handles document HTTP requests.
type DocumentHandler struct {
	service DocumentService
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(service DocumentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// UploadResponse is returned by Upload and Retry.
type UploadResponse struct {
	DocumentID string               `json:"document_id"`
	Filename   string               `json:"filename"`
	Status     model.DocumentStatus `json:"status"`
}

// DocumentResponse describes one document.
type DocumentResponse struct {
	DocumentID  string               `json:"document_id"`
	Filename    string               `json:"filename"`
	ContentType string               `json:"content_type,omitempty"`
	Size        int64                `json:"size"`
	Status      model.DocumentStatus `json:"status"`
	Error       *string              `json:"error,omitempty"`
	ChunkCount  int                  `json:"chunk_count"`
	CreatedAt   time.Time            `json:"created_at"`
}

// QueryRequest is the body of search and chat requests.
type QueryRequest struct {
	Query      string `json:"query" binding:"required,notblank"`
	Limit      int    `json:"limit" binding:"omitempty,min=1,max=20"`
	DocumentID string `json:"document_id" binding:"omitempty,ulid"`
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	Content    string  `json:"content"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Distance   float64 `json:"distance"`
}

// Upload accepts a multipart "file" and schedules its ingestion.
func (h *DocumentHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		httputils.WriteResponse(c, uploadFormError(err), nil)
		return
	}

	f, err := fh.Open()
	if err != nil {
		httputils.WriteResponse(c, errors.ErrUploadFailed.WithCause(err), nil)
		return
	}
	defer f.Close()

	doc, err := h.service.Upload(c.Request.Context(), middleware.Owner(c), fh.Filename, f)
	if err != nil {
		httputils.WriteResponse(c, toErrno(err), nil)
		return
	}

	httputils.WriteResponse(c, nil, UploadResponse{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     doc.Status,
	})
}

// List returns the caller's documents, newest first.
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.service.List(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		httputils.WriteResponse(c, toErrno(err), nil)
		return
	}

	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	httputils.WriteResponse(c, nil, out)
}

// Status returns one document's ingestion state.
func (h *DocumentHandler) Status(c *gin.Context) {
	doc, err := h.service.Get(c.Request.Context(), middleware.Owner(c), c.Param("id"))
	if err != nil {
		httputils.WriteResponse(c, toErrno(err), nil)
		return
	}
	httputils.WriteResponse(c, nil, toDocumentResponse(doc))
}

// Delete removes a document with its chunks and upload.
func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), middleware.Owner(c), id); err != nil {
		httputils.WriteResponse(c, toErrno(err), nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"document_id": id})
}

// Retry re-ingests a failed document.
func (h *DocumentHandler) Retry(c *gin.Context) {
	doc, err := h.service.Retry(c.Request.Context(), middleware.Owner(c), c.Param("id"))
	if err != nil {
		httputils.WriteResponse(c, toErrno(err), nil)
		return
	}

	httputils.WriteResponse(c, nil, UploadResponse{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     doc.Status,
	})
}

// Search returns the chunks nearest to the query.
func (h *DocumentHandler) Search(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, errors.ErrInvalidQuery.WithMessage(validator.Message(err)), nil)
		return
	}

	hits, err := h.service.Search(c.Request.Context(), middleware.Owner(c), req.toBiz())
	if err != nil {
		httputils.WriteResponse(c, toErrno(err), nil)
		return
	}

	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		out = append(out, SearchResult{
			Content:    hit.Content,
			DocumentID: hit.DocumentID,
			Filename:   hit.Filename,
			ChunkIndex: hit.ChunkIndex,
			Distance:   hit.Distance,
		})
	}
	httputils.WriteResponse(c, nil, out)
}

// Chat answers the query from the caller's documents with citations.
func (h *DocumentHandler) Chat(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, errors.ErrInvalidQuery.WithMessage(validator.Message(err)), nil)
		return
	}

	result, err := h.service.Chat(c.Request.Context(), middleware.Owner(c), req.toBiz())
	if err != nil {
		httputils.WriteResponse(c, toErrno(err), nil)
		return
	}
	httputils.WriteResponse(c, nil, result)
}

func (r QueryRequest) toBiz() biz.QueryRequest {
	return biz.QueryRequest{
		Query:      r.Query,
		Limit:      r.Limit,
		DocumentID: r.DocumentID,
	}
}

func toDocumentResponse(d *model.Document) DocumentResponse {
	return DocumentResponse{
		DocumentID:  d.ID,
		Filename:    d.Filename,
		ContentType: d.ContentType,
		Size:        d.Size,
		Status:      d.Status,
		Error:       d.Error,
		ChunkCount:  d.ChunkCount,
		CreatedAt:   d.CreatedAt,
	}
}
