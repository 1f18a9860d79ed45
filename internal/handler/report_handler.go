package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/paud-admission-api/internal/middleware"
	"github.com/noah-isme/paud-admission-api/internal/models"
	"github.com/noah-isme/paud-admission-api/internal/service"
	appErrors "github.com/noah-isme/paud-admission-api/pkg/errors"
	"github.com/noah-isme/paud-admission-api/pkg/response"
)

type reportManager interface {
	CreateJob(ctx context.Context, req service.CreateReportRequest, createdBy string) (*models.ReportJob, error)
	GetStatus(ctx context.Context, jobID string) (*models.ReportJob, error)
	ResolveDownload(ctx context.Context, token string) (*models.ReportJob, *os.File, error)
}

// ReportHandler exposes asynchronous report endpoints.
type ReportHandler struct {
	reports reportManager
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportManager) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Create godoc
// @Summary Queue a report generation job
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body service.CreateReportRequest true "Report payload"
// @Success 202 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	var req service.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	createdBy := ""
	if claims, ok := middleware.ClaimsFromContext(c); ok {
		createdBy = claims.UserID
	}
	job, err := h.reports.CreateJob(c.Request.Context(), req, createdBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Get report job status
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Status(c *gin.Context) {
	job, err := h.reports.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished report via signed token
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /reports/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing token"))
		return
	}
	job, file, err := h.reports.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat report file"))
		return
	}

	filename := filepath.Base(file.Name())
	mimeType := "text/csv"
	if strings.HasSuffix(filename, ".pdf") {
		mimeType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s-%s\"", job.Type, filename))
	c.DataFromReader(http.StatusOK, info.Size(), mimeType, file, nil)
}
