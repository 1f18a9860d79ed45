package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paud-admission-api/internal/models"
	"github.com/noah-isme/paud-admission-api/internal/service"
	appErrors "github.com/noah-isme/paud-admission-api/pkg/errors"
)

type participantServiceMock struct {
	registered   *models.Participant
	registerErr  error
	listResp     []models.Participant
	listErr      error
	statusErr    error
	statusCalled bool
	lastStatus   models.ParticipantStatus
	lastReason   string
}

func (m *participantServiceMock) Register(ctx context.Context, req service.RegisterParticipantRequest) (*models.Participant, error) {
	return m.registered, m.registerErr
}

func (m *participantServiceMock) List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, *models.Pagination, error) {
	if m.listErr != nil {
		return nil, nil, m.listErr
	}
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, nil
}

func (m *participantServiceMock) ChangeStatus(ctx context.Context, participantID string, newStatus models.ParticipantStatus, reason string) error {
	m.statusCalled = true
	m.lastStatus = newStatus
	m.lastReason = reason
	return m.statusErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestParticipantHandlerRegister(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &participantServiceMock{
		registered: &models.Participant{ID: "p-1", FullName: "Siti Rahma", Status: models.StatusUnderReview},
	}
	h := NewParticipantHandler(mockSvc)

	payload := []byte(`{"application_id":"app-1","institution_id":"inst-1","national_id":"317","full_name":"Siti Rahma","birth_date":"2023-05-01T00:00:00Z"}`)
	c, w := newGinContext(http.MethodPost, "/participants", payload)
	h.Register(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), `"id":"p-1"`)
}

func TestParticipantHandlerRegisterBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewParticipantHandler(&participantServiceMock{})

	c, w := newGinContext(http.MethodPost, "/participants", []byte(`{invalid`))
	h.Register(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParticipantHandlerChangeStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &participantServiceMock{}
	h := NewParticipantHandler(mockSvc)

	c, w := newGinContext(http.MethodPatch, "/participants/p-1/status", []byte(`{"status":"REJECTED","reason":"incomplete documents"}`))
	c.Params = gin.Params{{Key: "id", Value: "p-1"}}
	h.ChangeStatus(c)
	// A bare test context defers the status write until the writer flushes.
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	require.True(t, mockSvc.statusCalled)
	require.Equal(t, models.StatusRejected, mockSvc.lastStatus)
	require.Equal(t, "incomplete documents", mockSvc.lastReason)
}

func TestParticipantHandlerChangeStatusConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &participantServiceMock{
		statusErr: appErrors.Clone(appErrors.ErrInvalidTransition, "cannot transition from REJECTED to WAITING"),
	}
	h := NewParticipantHandler(mockSvc)

	c, w := newGinContext(http.MethodPatch, "/participants/p-1/status", []byte(`{"status":"WAITING"}`))
	c.Params = gin.Params{{Key: "id", Value: "p-1"}}
	h.ChangeStatus(c)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "INVALID_TRANSITION")
}

func TestParticipantHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &participantServiceMock{
		listResp: []models.Participant{{ID: "p-1", BirthDate: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)}},
	}
	h := NewParticipantHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/participants?institutionId=inst-1", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"total_count":1`)
}
