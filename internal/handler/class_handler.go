package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/paud-admission-api/internal/models"
	"github.com/noah-isme/paud-admission-api/pkg/response"
)

type capacityReader interface {
	ListClasses(ctx context.Context, institutionID string) ([]models.Class, error)
	Summary(ctx context.Context, institutionID string) (*models.InstitutionCapacity, error)
}

// ClassHandler exposes class and capacity endpoints.
type ClassHandler struct {
	capacity capacityReader
}

// NewClassHandler constructs handler.
func NewClassHandler(capacity capacityReader) *ClassHandler {
	return &ClassHandler{capacity: capacity}
}

// List godoc
// @Summary List an institution's classes
// @Tags Classes
// @Produce json
// @Param id path string true "Institution ID"
// @Success 200 {object} response.Envelope
// @Router /institutions/{id}/classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	classes, err := h.capacity.ListClasses(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// Capacity godoc
// @Summary Get an institution's capacity rollup
// @Tags Classes
// @Produce json
// @Param id path string true "Institution ID"
// @Success 200 {object} response.Envelope
// @Router /institutions/{id}/capacity [get]
func (h *ClassHandler) Capacity(c *gin.Context) {
	summary, err := h.capacity.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
