package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gradesheet/gradesheet-api/internal/service"
	appErrors "github.com/gradesheet/gradesheet-api/pkg/errors"
	"github.com/gradesheet/gradesheet-api/pkg/response"
)

// maxRosterFileSize caps uploaded roster files at 1 MiB.
const maxRosterFileSize = 1 << 20

// RosterHandler exposes class and student management endpoints.
type RosterHandler struct {
	service *service.RosterService
}

// NewRosterHandler constructs a roster handler.
func NewRosterHandler(svc *service.RosterService) *RosterHandler {
	return &RosterHandler{service: svc}
}

type pasteRosterRequest struct {
	Class string `json:"class" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

// Paste ingests raw pasted roster text, one name per line.
func (h *RosterHandler) Paste(c *gin.Context) {
	var req pasteRosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, count, err := h.service.PasteRoster(c.Request.Context(), req.Class, req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"class": detail, "names_processed": count})
}

// Import ingests an uploaded roster file; the class falls back to the
// filename when the form field is absent.
func (h *RosterHandler) Import(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "roster file is required"))
		return
	}
	if fileHeader.Size > maxRosterFileSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "roster file too large"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable roster file"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxRosterFileSize))
	if err != nil {
		response.Error(c, err)
		return
	}

	detail, count, err := h.service.ImportRoster(c.Request.Context(), fileHeader.Filename, c.PostForm("class"), content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"class": detail, "names_processed": count})
}

// Blank initializes an empty catch-all class.
func (h *RosterHandler) Blank(c *gin.Context) {
	class, err := h.service.CreateBlankClass(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// ListClasses returns every class with its students.
func (h *RosterHandler) ListClasses(c *gin.Context) {
	details, err := h.service.ListClasses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// DeleteClass removes a class and its students, scores and enrollments.
func (h *RosterHandler) DeleteClass(c *gin.Context) {
	if err := h.service.DeleteClass(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type renameStudentRequest struct {
	Name string `json:"name" binding:"required"`
}

// RenameStudent applies a corrected spelling to a student.
func (h *RosterHandler) RenameStudent(c *gin.Context) {
	var req renameStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.RenameStudent(c.Request.Context(), c.Param("id"), req.Name); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type moveStudentRequest struct {
	ClassID string `json:"class_id" binding:"required"`
}

// MoveStudent re-files a student into another class.
func (h *RosterHandler) MoveStudent(c *gin.Context) {
	var req moveStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.MoveStudent(c.Request.Context(), c.Param("id"), req.ClassID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteStudent removes a student and their scores.
func (h *RosterHandler) DeleteStudent(c *gin.Context) {
	if err := h.service.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
