package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/paud-admission-api/internal/models"
	"github.com/noah-isme/paud-admission-api/pkg/response"
)

type queueEntryService interface {
	Enter(ctx context.Context, participantID string) (int, error)
}

type lotteryGroupingService interface {
	GroupByPriority(ctx context.Context, institutionID string) (map[models.PriorityTier][]models.Participant, error)
	Reseed(ctx context.Context, institutionID string) (int, error)
}

type waitlistSnapshotService interface {
	GetWaitlistSnapshot(ctx context.Context, institutionID string) ([]models.WaitlistEntry, error)
}

// WaitlistHandler exposes queue endpoints.
type WaitlistHandler struct {
	queue      queueEntryService
	lottery    lotteryGroupingService
	admissions waitlistSnapshotService
}

// NewWaitlistHandler constructs handler.
func NewWaitlistHandler(queue queueEntryService, lottery lotteryGroupingService, admissions waitlistSnapshotService) *WaitlistHandler {
	return &WaitlistHandler{queue: queue, lottery: lottery, admissions: admissions}
}

// Enter godoc
// @Summary Move a reviewed participant onto the waitlist
// @Tags Waitlist
// @Produce json
// @Param id path string true "Participant ID"
// @Success 200 {object} response.Envelope
// @Router /participants/{id}/waitlist [post]
func (h *WaitlistHandler) Enter(c *gin.Context) {
	order, err := h.queue.Enter(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"current_order": order}, nil)
}

// Snapshot godoc
// @Summary Get an institution's ordered waitlist
// @Tags Waitlist
// @Produce json
// @Param id path string true "Institution ID"
// @Success 200 {object} response.Envelope
// @Router /institutions/{id}/waitlist [get]
func (h *WaitlistHandler) Snapshot(c *gin.Context) {
	entries, err := h.admissions.GetWaitlistSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Reseed godoc
// @Summary Renumber the waitlist into priority-tier order
// @Tags Waitlist
// @Produce json
// @Param id path string true "Institution ID"
// @Success 200 {object} response.Envelope
// @Router /institutions/{id}/waitlist/reseed [post]
func (h *WaitlistHandler) Reseed(c *gin.Context) {
	count, err := h.lottery.Reseed(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"reseeded": count}, nil)
}

// Groups godoc
// @Summary Get waiting participants grouped by priority tier
// @Tags Waitlist
// @Produce json
// @Param id path string true "Institution ID"
// @Success 200 {object} response.Envelope
// @Router /institutions/{id}/waitlist/groups [get]
func (h *WaitlistHandler) Groups(c *gin.Context) {
	groups, err := h.lottery.GroupByPriority(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}
