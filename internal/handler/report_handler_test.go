package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paud-admission-api/internal/models"
	"github.com/noah-isme/paud-admission-api/internal/service"
	appErrors "github.com/noah-isme/paud-admission-api/pkg/errors"
)

type reportManagerMock struct {
	created     *models.ReportJob
	createErr   error
	status      *models.ReportJob
	statusErr   error
	downloadJob *models.ReportJob
	downloadErr error
	file        *os.File
}

func (m *reportManagerMock) CreateJob(ctx context.Context, req service.CreateReportRequest, createdBy string) (*models.ReportJob, error) {
	return m.created, m.createErr
}

func (m *reportManagerMock) GetStatus(ctx context.Context, jobID string) (*models.ReportJob, error) {
	return m.status, m.statusErr
}

func (m *reportManagerMock) ResolveDownload(ctx context.Context, token string) (*models.ReportJob, *os.File, error) {
	if m.downloadErr != nil {
		return nil, nil, m.downloadErr
	}
	return m.downloadJob, m.file, nil
}

func TestReportHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportManagerMock{
		created: &models.ReportJob{ID: "job-1", Type: models.ReportTypeWaitlist, Status: models.ReportStatusQueued},
	}
	h := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/reports", []byte(`{"type":"waitlist","institution_id":"inst-1","format":"csv"}`))
	h.Create(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Contains(t, w.Body.String(), `"status":"QUEUED"`)
}

func TestReportHandlerStatusNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportManagerMock{
		statusErr: appErrors.Clone(appErrors.ErrNotFound, "report job not found"),
	}
	h := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.Status(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "job-1.csv")
	require.NoError(t, os.WriteFile(path, []byte("Nama\nSiti Rahma\n"), 0o644))
	file, err := os.Open(path)
	require.NoError(t, err)

	mockSvc := &reportManagerMock{
		downloadJob: &models.ReportJob{ID: "job-1", Type: models.ReportTypeWaitlist, Status: models.ReportStatusFinished},
		file:        file,
	}
	h := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/download?token=abc", nil)
	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Siti Rahma")
	require.Contains(t, w.Header().Get("Content-Disposition"), "job-1.csv")
}

func TestReportHandlerDownloadMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewReportHandler(&reportManagerMock{})

	c, w := newGinContext(http.MethodGet, "/reports/download", nil)
	h.Download(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
