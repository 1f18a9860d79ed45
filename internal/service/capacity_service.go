package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/paud-admission-api/internal/models"
	appErrors "github.com/noah-isme/paud-admission-api/pkg/errors"
)

type classCapacityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ListByInstitution(ctx context.Context, institutionID string) ([]models.Class, error)
	Reserve(ctx context.Context, classID string) (bool, error)
	Release(ctx context.Context, classID string) error
	CapacitySummary(ctx context.Context, institutionID string) (*models.InstitutionCapacity, error)
}

type reservationObserver interface {
	SeatReserved()
	SeatReservationRejected()
}

// CapacityService owns the per-class seat counters. Admission code never
// touches current_students directly; it asks this service to reserve or
// release a seat.
type CapacityService struct {
	classes classCapacityRepository
	metrics reservationObserver
	logger  *zap.Logger
}

// NewCapacityService constructs CapacityService.
func NewCapacityService(classes classCapacityRepository, metrics reservationObserver, logger *zap.Logger) *CapacityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityService{classes: classes, metrics: metrics, logger: logger}
}

// HasCapacity reports whether the class can take one more child.
func (s *CapacityService) HasCapacity(ctx context.Context, classID string) (bool, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class.HasCapacity(), nil
}

// Reserve takes one seat or fails with CapacityExceeded without mutating
// anything. The underlying update is conditional, so the check and the
// increment cannot be split by a concurrent reservation.
func (s *CapacityService) Reserve(ctx context.Context, classID string) error {
	reserved, err := s.classes.Reserve(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve seat")
	}
	if !reserved {
		if s.metrics != nil {
			s.metrics.SeatReservationRejected()
		}
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "")
	}
	if s.metrics != nil {
		s.metrics.SeatReserved()
	}
	return nil
}

// Release frees one seat, e.g. to compensate a failed admission after the
// seat was already taken.
func (s *CapacityService) Release(ctx context.Context, classID string) error {
	if err := s.classes.Release(ctx, classID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release seat")
	}
	return nil
}

// Summary returns the institution-level capacity rollup. Reporting only;
// admission decisions are always taken per class.
func (s *CapacityService) Summary(ctx context.Context, institutionID string) (*models.InstitutionCapacity, error) {
	summary, err := s.classes.CapacitySummary(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load capacity summary")
	}
	return summary, nil
}

// ListClasses returns the institution's classes ordered by age band.
func (s *CapacityService) ListClasses(ctx context.Context, institutionID string) ([]models.Class, error) {
	classes, err := s.classes.ListByInstitution(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}
