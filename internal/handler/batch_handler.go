package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gradesheet/gradesheet-api/internal/models"
	"github.com/gradesheet/gradesheet-api/internal/service"
	appErrors "github.com/gradesheet/gradesheet-api/pkg/errors"
	"github.com/gradesheet/gradesheet-api/pkg/response"
)

// BatchHandler streams score-sheet extraction results over SSE.
type BatchHandler struct {
	batches *service.BatchService
	rosters *service.RosterService
	logger  *zap.Logger
}

// NewBatchHandler constructs a batch handler.
func NewBatchHandler(batches *service.BatchService, rosters *service.RosterService, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{batches: batches, rosters: rosters, logger: logger}
}

type batchRequest struct {
	Images  []string `json:"images" binding:"required,min=1"`
	Classes []string `json:"classes"`
}

// Create accepts a batch of base64 images and responds with a
// text/event-stream of reconciled records. Each record event carries the
// image's position in the request; a failed chunk yields one error event
// with every affected position. The stream ends with a [DONE] sentinel.
func (h *BatchHandler) Create(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrEmptyBatch.Code, http.StatusBadRequest, "no images provided"))
		return
	}

	rosters, err := h.rosters.TargetRosters(c.Request.Context(), req.Classes)
	if err != nil {
		response.Error(c, err)
		return
	}

	events, err := h.batches.Process(c.Request.Context(), req.Images, rosters)
	if err != nil {
		response.Error(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, appErrors.ErrInternal)
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for ev := range events {
		if ev.Type == models.BatchEventDone {
			break
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("marshal batch event", zap.Error(err))
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	flusher.Flush()
}
