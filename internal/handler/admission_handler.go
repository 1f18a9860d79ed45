package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/paud-admission-api/internal/models"
	"github.com/noah-isme/paud-admission-api/internal/service"
	appErrors "github.com/noah-isme/paud-admission-api/pkg/errors"
	"github.com/noah-isme/paud-admission-api/pkg/response"
)

type admissionRunner interface {
	RunAdmissionPass(ctx context.Context, institutionID string) (*models.AdmissionPassResult, error)
	ManualAdmit(ctx context.Context, participantID, classID string) (*models.Participant, error)
}

// AdmissionHandler exposes lottery pass and manual admission endpoints.
type AdmissionHandler struct {
	admissions admissionRunner
}

// NewAdmissionHandler constructs handler.
func NewAdmissionHandler(admissions admissionRunner) *AdmissionHandler {
	return &AdmissionHandler{admissions: admissions}
}

// RunPass godoc
// @Summary Run an admission pass over the institution's waitlist
// @Tags Admissions
// @Produce json
// @Param id path string true "Institution ID"
// @Success 200 {object} response.Envelope
// @Router /institutions/{id}/admissions/run [post]
func (h *AdmissionHandler) RunPass(c *gin.Context) {
	result, err := h.admissions.RunAdmissionPass(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ManualAdmit godoc
// @Summary Admit a waiting participant into a chosen class
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Participant ID"
// @Param payload body service.ManualAdmitRequest true "Class payload"
// @Success 200 {object} response.Envelope
// @Router /participants/{id}/admit [post]
func (h *AdmissionHandler) ManualAdmit(c *gin.Context) {
	var req service.ManualAdmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	participant, err := h.admissions.ManualAdmit(c.Request.Context(), c.Param("id"), req.ClassID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participant, nil)
}
