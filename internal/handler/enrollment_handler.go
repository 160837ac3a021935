package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gradesheet/gradesheet-api/internal/service"
	appErrors "github.com/gradesheet/gradesheet-api/pkg/errors"
	"github.com/gradesheet/gradesheet-api/pkg/response"
)

// EnrollmentHandler manages per-subject student allowlists.
type EnrollmentHandler struct {
	service *service.RosterService
}

// NewEnrollmentHandler constructs an enrollment handler.
func NewEnrollmentHandler(svc *service.RosterService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

type replaceEnrollmentsRequest struct {
	StudentIDs []string `json:"student_ids"`
}

// Replace swaps a class's subject allowlist wholesale. An empty list clears
// it, so the subject report falls back to scored-students gating.
func (h *EnrollmentHandler) Replace(c *gin.Context) {
	var req replaceEnrollmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	err := h.service.UpdateEnrollments(c.Request.Context(), c.Param("id"), c.Param("subject"), req.StudentIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
