package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/paud-admission-api/internal/models"
	appErrors "github.com/noah-isme/paud-admission-api/pkg/errors"
)

type participantQueueRepository interface {
	FindByID(ctx context.Context, id string) (*models.Participant, error)
	EnterWaiting(ctx context.Context, participantID, institutionID string) (int, error)
	ExitWaiting(ctx context.Context, participantID, institutionID string, newStatus models.ParticipantStatus, upd models.ParticipantUpdate) error
	WaitingOrders(ctx context.Context, institutionID string) ([]int, error)
}

type snapshotInvalidator interface {
	Delete(ctx context.Context, keys ...string) error
}

// QueueService is the only owner of waitlist order transitions. Every entry
// into and exit from the waiting state goes through it so the dense 1..N
// order per institution survives any sequence of operations.
type QueueService struct {
	participants participantQueueRepository
	cache        snapshotInvalidator
	logger       *zap.Logger
}

// NewQueueService constructs QueueService.
func NewQueueService(participants participantQueueRepository, cache snapshotInvalidator, logger *zap.Logger) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{participants: participants, cache: cache, logger: logger}
}

// snapshotKey is the cache key of an institution's waitlist snapshot.
func snapshotKey(institutionID string) string {
	return fmt.Sprintf("waitlist:%s", institutionID)
}

// Enter places a participant at the tail of its institution's waitlist and
// returns the assigned order.
func (s *QueueService) Enter(ctx context.Context, participantID string) (int, error) {
	participant, err := s.participants.FindByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "participant not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participant")
	}
	if participant.Status == models.StatusWaiting {
		return 0, appErrors.Clone(appErrors.ErrInvalidState, "participant is already waiting")
	}
	if !participant.Status.CanTransitionTo(models.StatusWaiting) {
		return 0, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot enter waitlist from %s", participant.Status))
	}

	order, err := s.participants.EnterWaiting(ctx, participantID, participant.InstitutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "participant or institution not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enter waitlist")
	}

	s.invalidate(ctx, participant.InstitutionID)
	s.logger.Info("participant entered waitlist",
		zap.String("participant_id", participantID),
		zap.String("institution_id", participant.InstitutionID),
		zap.Int("order", order))
	return order, nil
}

// Exit removes a waiting participant from the queue, writes the new status
// and renumbers everyone behind it. The participant must currently be
// waiting; anything else is an invalid-state error.
func (s *QueueService) Exit(ctx context.Context, participantID string, newStatus models.ParticipantStatus, upd models.ParticipantUpdate) error {
	participant, err := s.participants.FindByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "participant not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participant")
	}
	if participant.Status != models.StatusWaiting || participant.CurrentOrder == nil {
		return appErrors.Clone(appErrors.ErrInvalidState, "participant is not on the waitlist")
	}
	if !models.StatusWaiting.CanTransitionTo(newStatus) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot leave waitlist to %s", newStatus))
	}

	if err := s.participants.ExitWaiting(ctx, participantID, participant.InstitutionID, newStatus, upd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost a race: someone else moved the participant first.
			return appErrors.Clone(appErrors.ErrInvalidState, "participant is not on the waitlist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to exit waitlist")
	}

	if err := s.VerifyOrderDensity(ctx, participant.InstitutionID); err != nil {
		return err
	}

	s.invalidate(ctx, participant.InstitutionID)
	s.logger.Info("participant left waitlist",
		zap.String("participant_id", participantID),
		zap.String("institution_id", participant.InstitutionID),
		zap.String("new_status", string(newStatus)))
	return nil
}

// VerifyOrderDensity checks that the waiting orders of an institution form
// exactly 1..N. A violation is a bug in the queue logic, not a user error.
func (s *QueueService) VerifyOrderDensity(ctx context.Context, institutionID string) error {
	orders, err := s.participants.WaitingOrders(ctx, institutionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify waitlist order")
	}
	for i, order := range orders {
		if order != i+1 {
			s.logger.Error("waitlist order density violated",
				zap.String("institution_id", institutionID),
				zap.Int("position", i+1),
				zap.Int("order", order))
			return appErrors.Clone(appErrors.ErrOrderingViolation, "")
		}
	}
	return nil
}

func (s *QueueService) invalidate(ctx context.Context, institutionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, snapshotKey(institutionID)); err != nil {
		s.logger.Warn("failed to invalidate waitlist snapshot", zap.String("institution_id", institutionID), zap.Error(err))
	}
}
