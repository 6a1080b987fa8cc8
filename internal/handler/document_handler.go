package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/docuchat-io/docuchat/internal/pkg/errcode"
	"github.com/docuchat-io/docuchat/internal/pkg/response"
	"github.com/docuchat-io/docuchat/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Upload accepts one multipart file and schedules ingestion. The response
// carries the document in `pending`.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "missing file field")
		return
	}
	src, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "failed to read upload")
		return
	}
	defer src.Close()
	doc, err := h.documents.Upload(c.Request.Context(), getCompanyID(c), file.Filename, file.Size, src)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context(), getCompanyID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), getCompanyID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), getCompanyID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}

// Reingest replays the pipeline for a settled document, e.g. after an
// embedding model upgrade.
func (h *DocumentHandler) Reingest(c *gin.Context) {
	doc, err := h.documents.Reingest(c.Request.Context(), getCompanyID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}
