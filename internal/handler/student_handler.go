package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-identity-api/internal/dto"
	"github.com/noah-isme/tutor-identity-api/internal/models"
	appErrors "github.com/noah-isme/tutor-identity-api/pkg/errors"
	"github.com/noah-isme/tutor-identity-api/pkg/response"
)

type shadowCreator interface {
	CreateShadow(ctx context.Context, teacherUserID string, req dto.CreateShadowStudentRequest) (*dto.ShadowStudentResult, error)
}

type rosterService interface {
	List(ctx context.Context, teacherUserID string, filter models.RelationFilter) ([]models.RosterEntry, *models.Pagination, error)
	UpdateLabel(ctx context.Context, teacherUserID, studentID string, req dto.UpdateRelationRequest) (*models.StudentTeacherRelation, error)
	Archive(ctx context.Context, teacherUserID, studentID string) (*models.StudentTeacherRelation, error)
	Restore(ctx context.Context, teacherUserID, studentID string) (*models.StudentTeacherRelation, error)
	Delete(ctx context.Context, teacherUserID, studentID string) (*dto.DeleteRelationResult, error)
	RegenerateToken(ctx context.Context, teacherUserID, studentID string) (*dto.InviteToken, error)
	ToggleInvite(ctx context.Context, teacherUserID, studentID string, enable bool) (*dto.InviteToken, error)
}

// StudentHandler exposes the teacher's student roster.
type StudentHandler struct {
	shadows   shadowCreator
	relations rosterService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(shadows shadowCreator, relations rosterService) *StudentHandler {
	return &StudentHandler{shadows: shadows, relations: relations}
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}

// List godoc
// @Summary List the teacher's students
// @Tags Teacher Students
// @Produce json
// @Security BearerAuth
// @Param status query string false "ACTIVE or ARCHIVED"
// @Param search query string false "Search by label, name or student number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teacher/students [get]
func (h *StudentHandler) List(c *gin.Context) {
	var filter models.RelationFilter
	switch status := models.RelationStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))); status {
	case "", "ALL":
	case models.RelationStatusActive, models.RelationStatusArchived:
		filter.Status = status
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status must be ACTIVE or ARCHIVED"))
		return
	}
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	entries, pagination, err := h.relations.List(c.Request.Context(), currentUserID(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Create godoc
// @Summary Create a shadow student
// @Tags Teacher Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateShadowStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /teacher/students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req dto.CreateShadowStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.shadows.CreateShadow(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Update the teacher's label and notes for a student
// @Tags Teacher Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student profile ID"
// @Param payload body dto.UpdateRelationRequest true "Label payload"
// @Success 200 {object} response.Envelope
// @Router /teacher/students/{studentId} [patch]
func (h *StudentHandler) Update(c *gin.Context) {
	var req dto.UpdateRelationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	relation, err := h.relations.UpdateLabel(c.Request.Context(), currentUserID(c), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, relation, nil)
}

// Archive godoc
// @Summary Archive a student
// @Tags Teacher Students
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student profile ID"
// @Success 200 {object} response.Envelope
// @Router /teacher/students/{studentId}/archive [post]
func (h *StudentHandler) Archive(c *gin.Context) {
	relation, err := h.relations.Archive(c.Request.Context(), currentUserID(c), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, relation, nil)
}

// Restore godoc
// @Summary Restore an archived student
// @Tags Teacher Students
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student profile ID"
// @Success 200 {object} response.Envelope
// @Router /teacher/students/{studentId}/restore [post]
func (h *StudentHandler) Restore(c *gin.Context) {
	relation, err := h.relations.Restore(c.Request.Context(), currentUserID(c), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, relation, nil)
}

// Delete godoc
// @Summary Remove a student from the roster
// @Description Claimed students are unlinked; shadow students are deleted.
// @Tags Teacher Students
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student profile ID"
// @Success 200 {object} response.Envelope
// @Router /teacher/students/{studentId} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	result, err := h.relations.Delete(c.Request.Context(), currentUserID(c), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RegenerateInvite godoc
// @Summary Issue a fresh invitation token
// @Tags Teacher Students
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student profile ID"
// @Success 200 {object} response.Envelope
// @Router /teacher/students/{studentId}/invite [post]
func (h *StudentHandler) RegenerateInvite(c *gin.Context) {
	invite, err := h.relations.RegenerateToken(c.Request.Context(), currentUserID(c), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invite, nil)
}

// ToggleInvite godoc
// @Summary Enable or disable a student's invitation
// @Tags Teacher Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student profile ID"
// @Param payload body dto.ToggleInviteRequest true "Toggle payload"
// @Success 200 {object} response.Envelope
// @Success 204
// @Router /teacher/students/{studentId}/invite [put]
func (h *StudentHandler) ToggleInvite(c *gin.Context) {
	var req dto.ToggleInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if req.Enabled == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "enabled is required"))
		return
	}
	invite, err := h.relations.ToggleInvite(c.Request.Context(), currentUserID(c), c.Param("studentId"), *req.Enabled)
	if err != nil {
		response.Error(c, err)
		return
	}
	if invite == nil {
		response.NoContent(c)
		return
	}
	response.JSON(c, http.StatusOK, invite, nil)
}
