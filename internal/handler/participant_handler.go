package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/paud-admission-api/internal/models"
	"github.com/noah-isme/paud-admission-api/internal/service"
	appErrors "github.com/noah-isme/paud-admission-api/pkg/errors"
	"github.com/noah-isme/paud-admission-api/pkg/response"
)

type participantService interface {
	Register(ctx context.Context, req service.RegisterParticipantRequest) (*models.Participant, error)
	List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, *models.Pagination, error)
	ChangeStatus(ctx context.Context, participantID string, newStatus models.ParticipantStatus, reason string) error
}

// ParticipantHandler exposes participant intake and lifecycle endpoints.
type ParticipantHandler struct {
	admissions participantService
}

// NewParticipantHandler constructs handler.
func NewParticipantHandler(admissions participantService) *ParticipantHandler {
	return &ParticipantHandler{admissions: admissions}
}

// Register godoc
// @Summary Register a participant from a submitted application
// @Tags Participants
// @Accept json
// @Produce json
// @Param payload body service.RegisterParticipantRequest true "Participant payload"
// @Success 201 {object} response.Envelope
// @Router /participants [post]
func (h *ParticipantHandler) Register(c *gin.Context) {
	var req service.RegisterParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	participant, err := h.admissions.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, participant)
}

// List godoc
// @Summary List participants
// @Tags Participants
// @Produce json
// @Param institutionId query string false "Filter by institution"
// @Param status query string false "Filter by status"
// @Param search query string false "Search by name or NIK"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /participants [get]
func (h *ParticipantHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	filter := models.ParticipantFilter{
		InstitutionID: c.Query("institutionId"),
		Status:        models.ParticipantStatus(c.Query("status")),
		Search:        c.Query("search"),
		Page:          page,
		PageSize:      pageSize,
		SortBy:        c.Query("sortBy"),
		SortOrder:     c.Query("sortOrder"),
	}
	participants, pagination, err := h.admissions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participants, pagination)
}

// ChangeStatus godoc
// @Summary Transition a participant through the admission state machine
// @Tags Participants
// @Accept json
// @Produce json
// @Param id path string true "Participant ID"
// @Param payload body service.ChangeStatusRequest true "Status payload"
// @Success 204 "No Content"
// @Router /participants/{id}/status [patch]
func (h *ParticipantHandler) ChangeStatus(c *gin.Context) {
	var req service.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.admissions.ChangeStatus(c.Request.Context(), c.Param("id"), req.Status, req.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
