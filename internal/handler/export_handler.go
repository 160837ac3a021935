package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gradesheet/gradesheet-api/internal/service"
	appErrors "github.com/gradesheet/gradesheet-api/pkg/errors"
	"github.com/gradesheet/gradesheet-api/pkg/response"
)

// ExportHandler merges reviewed batches and serves the rendered files.
type ExportHandler struct {
	service *service.ExportService
	logger  *zap.Logger
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService, logger *zap.Logger) *ExportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportHandler{service: svc, logger: logger}
}

// Create merges the posted records and renders the report, returning a
// signed download token.
func (h *ExportHandler) Create(c *gin.Context) {
	var req service.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.CreateExport(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download streams a previously rendered export after token validation.
func (h *ExportHandler) Download(c *gin.Context) {
	file, name, err := h.service.OpenDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	contentType := "text/csv"
	if strings.HasSuffix(name, ".pdf") {
		contentType = "application/pdf"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		h.logger.Warn("stream export download", zap.Error(err))
	}
}
