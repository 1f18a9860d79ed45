package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paud-admission-api/internal/models"
	appErrors "github.com/noah-isme/paud-admission-api/pkg/errors"
)

type queueEntryMock struct {
	order int
	err   error
}

func (m *queueEntryMock) Enter(ctx context.Context, participantID string) (int, error) {
	return m.order, m.err
}

type lotteryMock struct {
	groups map[models.PriorityTier][]models.Participant
	count  int
	err    error
}

func (m *lotteryMock) GroupByPriority(ctx context.Context, institutionID string) (map[models.PriorityTier][]models.Participant, error) {
	return m.groups, m.err
}

func (m *lotteryMock) Reseed(ctx context.Context, institutionID string) (int, error) {
	return m.count, m.err
}

type snapshotMock struct {
	entries []models.WaitlistEntry
	err     error
}

func (m *snapshotMock) GetWaitlistSnapshot(ctx context.Context, institutionID string) ([]models.WaitlistEntry, error) {
	return m.entries, m.err
}

func TestWaitlistHandlerEnter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewWaitlistHandler(&queueEntryMock{order: 3}, &lotteryMock{}, &snapshotMock{})

	c, w := newGinContext(http.MethodPost, "/participants/p-1/waitlist", nil)
	c.Params = gin.Params{{Key: "id", Value: "p-1"}}
	h.Enter(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"current_order":3`)
}

func TestWaitlistHandlerEnterConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	queue := &queueEntryMock{err: appErrors.Clone(appErrors.ErrInvalidState, "participant is already waiting")}
	h := NewWaitlistHandler(queue, &lotteryMock{}, &snapshotMock{})

	c, w := newGinContext(http.MethodPost, "/participants/p-1/waitlist", nil)
	c.Params = gin.Params{{Key: "id", Value: "p-1"}}
	h.Enter(c)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "INVALID_STATE")
}

func TestWaitlistHandlerSnapshot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	order := 1
	snapshots := &snapshotMock{entries: []models.WaitlistEntry{
		{Participant: models.Participant{ID: "p-1", CurrentOrder: &order}, AgeMonths: 20},
	}}
	h := NewWaitlistHandler(&queueEntryMock{}, &lotteryMock{}, snapshots)

	c, w := newGinContext(http.MethodGet, "/institutions/inst-1/waitlist", nil)
	c.Params = gin.Params{{Key: "id", Value: "inst-1"}}
	h.Snapshot(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"age_months":20`)
}

func TestWaitlistHandlerReseed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewWaitlistHandler(&queueEntryMock{}, &lotteryMock{count: 5}, &snapshotMock{})

	c, w := newGinContext(http.MethodPost, "/institutions/inst-1/waitlist/reseed", nil)
	c.Params = gin.Params{{Key: "id", Value: "inst-1"}}
	h.Reseed(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"reseeded":5`)
}
