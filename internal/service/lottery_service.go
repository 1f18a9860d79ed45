package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/paud-admission-api/internal/models"
	appErrors "github.com/noah-isme/paud-admission-api/pkg/errors"
)

type waitingLister interface {
	ListWaiting(ctx context.Context, institutionID string) ([]models.Participant, error)
	ReassignOrders(ctx context.Context, institutionID string, orderedIDs []string) error
}

// LotteryService partitions an institution's waitlist into priority tiers
// and performs the tier-ordered reseed that precedes a fresh lottery round.
type LotteryService struct {
	participants waitingLister
	cache        snapshotInvalidator
	logger       *zap.Logger
}

// NewLotteryService constructs LotteryService.
func NewLotteryService(participants waitingLister, cache snapshotInvalidator, logger *zap.Logger) *LotteryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LotteryService{participants: participants, cache: cache, logger: logger}
}

// GroupByPriority splits the waiting participants of an institution into the
// three admission tiers. Within a tier the queue order is preserved; across
// tiers, tier one is always drawn before tier two, and tier two before
// tier three.
func (s *LotteryService) GroupByPriority(ctx context.Context, institutionID string) (map[models.PriorityTier][]models.Participant, error) {
	waiting, err := s.participants.ListWaiting(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waiting participants")
	}

	groups := map[models.PriorityTier][]models.Participant{
		models.TierFirst:  {},
		models.TierSecond: {},
		models.TierThird:  {},
	}
	for _, p := range waiting {
		tier := p.Tier()
		groups[tier] = append(groups[tier], p)
	}
	return groups, nil
}

// Reseed rewrites the whole queue in priority-tier order: all tier-one
// participants first (keeping their relative order), then tier two, then
// tier three, numbered 1..N. The zero-and-rewrite runs in one transaction,
// so the dense-order invariant holds again the moment it commits.
func (s *LotteryService) Reseed(ctx context.Context, institutionID string) (int, error) {
	groups, err := s.GroupByPriority(ctx, institutionID)
	if err != nil {
		return 0, err
	}

	ordered := make([]string, 0, len(groups[models.TierFirst])+len(groups[models.TierSecond])+len(groups[models.TierThird]))
	for _, tier := range []models.PriorityTier{models.TierFirst, models.TierSecond, models.TierThird} {
		for _, p := range groups[tier] {
			ordered = append(ordered, p.ID)
		}
	}
	if len(ordered) == 0 {
		return 0, nil
	}

	if err := s.participants.ReassignOrders(ctx, institutionID, ordered); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrOrderingViolation.Code, appErrors.ErrOrderingViolation.Status, "failed to reseed waitlist order")
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, snapshotKey(institutionID)); err != nil {
			s.logger.Warn("failed to invalidate waitlist snapshot", zap.String("institution_id", institutionID), zap.Error(err))
		}
	}
	s.logger.Info("waitlist reseeded by priority",
		zap.String("institution_id", institutionID),
		zap.Int("participants", len(ordered)))
	return len(ordered), nil
}
