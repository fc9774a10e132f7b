package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/errcode"
	"github.com/edustack/tutord/internal/pkg/response"
	"github.com/edustack/tutord/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

type submitDocumentRequest struct {
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Locator string `json:"locator"`
}

type documentView struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Title       string `json:"title"`
	Locator     string `json:"locator,omitempty"`
	Status      string `json:"status"`
	ErrorDetail string `json:"error_detail,omitempty"`
	ChunkCount  int    `json:"chunk_count"`
	ModelName   string `json:"model_name,omitempty"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}

func toDocumentView(doc *model.Document) documentView {
	return documentView{
		ID:          doc.ID,
		OwnerID:     doc.OwnerID,
		Title:       doc.Title,
		Locator:     doc.Locator,
		Status:      string(doc.Status),
		ErrorDetail: doc.ErrorDetail,
		ChunkCount:  doc.ChunkCount,
		ModelName:   doc.ModelName,
		Ctime:       doc.Ctime,
		Mtime:       doc.Mtime,
	}
}

func (h *DocumentHandler) Submit(c *gin.Context) {
	var req submitDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request body")
		return
	}
	doc, err := h.documents.Submit(c.Request.Context(), req.OwnerID, req.Title, req.Content, req.Locator)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, toDocumentView(doc))
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, toDocumentView(doc))
}

func (h *DocumentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	docs, err := h.documents.List(c.Request.Context(), ownerID(c), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	views := make([]documentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, toDocumentView(doc))
	}
	response.Success(c, gin.H{"documents": views})
}

type chunkView struct {
	ID            string `json:"id"`
	Ordinal       int    `json:"ordinal"`
	Content       string `json:"content"`
	TokenCount    int    `json:"token_count"`
	OverlapTokens int    `json:"overlap_tokens"`
}

func (h *DocumentHandler) Chunks(c *gin.Context) {
	chunks, err := h.documents.ListChunks(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	views := make([]chunkView, 0, len(chunks))
	for _, chunk := range chunks {
		views = append(views, chunkView{
			ID:            chunk.ID,
			Ordinal:       chunk.Ordinal,
			Content:       chunk.Content,
			TokenCount:    chunk.TokenCount,
			OverlapTokens: chunk.OverlapTokens,
		})
	}
	response.Success(c, gin.H{"chunks": views})
}

func (h *DocumentHandler) Reingest(c *gin.Context) {
	if err := h.documents.Reingest(c.Request.Context(), ownerID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"queued": true})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), ownerID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}
