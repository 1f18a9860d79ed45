package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/paud-admission-api/internal/models"
	appErrors "github.com/noah-isme/paud-admission-api/pkg/errors"
)

type admissionParticipantRepository interface {
	FindByID(ctx context.Context, id string) (*models.Participant, error)
	ListWaiting(ctx context.Context, institutionID string) ([]models.Participant, error)
	List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, int, error)
	Create(ctx context.Context, participant *models.Participant) error
	UpdateStatus(ctx context.Context, id string, status models.ParticipantStatus, upd models.ParticipantUpdate) error
	RecordSkipReason(ctx context.Context, id, reason string) error
}

type admissionClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ListByInstitution(ctx context.Context, institutionID string) ([]models.Class, error)
}

type institutionReader interface {
	FindByID(ctx context.Context, id string) (*models.Institution, error)
}

type waitingQueue interface {
	Enter(ctx context.Context, participantID string) (int, error)
	Exit(ctx context.Context, participantID string, newStatus models.ParticipantStatus, upd models.ParticipantUpdate) error
}

type seatLedger interface {
	Reserve(ctx context.Context, classID string) error
	Release(ctx context.Context, classID string) error
}

type priorityGrouper interface {
	GroupByPriority(ctx context.Context, institutionID string) (map[models.PriorityTier][]models.Participant, error)
}

type snapshotCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type admissionObserver interface {
	AdmissionRecorded(tier models.PriorityTier)
	SetWaitlistSize(institutionID string, size int)
	CacheHit()
	CacheMiss()
}

// RegisterParticipantRequest describes application intake.
type RegisterParticipantRequest struct {
	ApplicationID string    `json:"application_id" validate:"required"`
	InstitutionID string    `json:"institution_id" validate:"required"`
	NationalID    string    `json:"national_id" validate:"required"`
	FullName      string    `json:"full_name" validate:"required"`
	BirthDate     time.Time `json:"birth_date" validate:"required"`
	IdentityType  int       `json:"identity_type" validate:"min=0"`
}

// ChangeStatusRequest describes a manual status transition.
type ChangeStatusRequest struct {
	Status models.ParticipantStatus `json:"status" validate:"required"`
	Reason string                   `json:"reason"`
}

// ManualAdmitRequest carries the staff-chosen class.
type ManualAdmitRequest struct {
	ClassID string `json:"class_id" validate:"required"`
}

// AdmissionService drives the participant state machine. It is the only
// caller of the queue, capacity and lottery services during admissions, so
// they always run in the right order: eligibility, then seat, then queue
// exit.
type AdmissionService struct {
	participants admissionParticipantRepository
	classes      admissionClassReader
	institutions institutionReader
	queue        waitingQueue
	seats        seatLedger
	lottery      priorityGrouper
	cache        snapshotCache
	metrics      admissionObserver
	validator    *validator.Validate
	logger       *zap.Logger
	snapshotTTL  time.Duration
}

// NewAdmissionService constructs AdmissionService.
func NewAdmissionService(
	participants admissionParticipantRepository,
	classes admissionClassReader,
	institutions institutionReader,
	queue waitingQueue,
	seats seatLedger,
	lottery priorityGrouper,
	cache snapshotCache,
	metrics admissionObserver,
	validate *validator.Validate,
	logger *zap.Logger,
	snapshotTTL time.Duration,
) *AdmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if snapshotTTL <= 0 {
		snapshotTTL = 2 * time.Minute
	}
	return &AdmissionService{
		participants: participants,
		classes:      classes,
		institutions: institutions,
		queue:        queue,
		seats:        seats,
		lottery:      lottery,
		cache:        cache,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		snapshotTTL:  snapshotTTL,
	}
}

// Register creates a participant in UNDER_REVIEW from a submitted
// application.
func (s *AdmissionService) Register(ctx context.Context, req RegisterParticipantRequest) (*models.Participant, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid participant payload")
	}
	if _, err := s.institutions.FindByID(ctx, req.InstitutionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institution")
	}
	participant := &models.Participant{
		ApplicationID: req.ApplicationID,
		InstitutionID: req.InstitutionID,
		NationalID:    req.NationalID,
		FullName:      req.FullName,
		BirthDate:     req.BirthDate,
		Role:          models.RoleChild,
		Status:        models.StatusUnderReview,
		IdentityType:  req.IdentityType,
	}
	if err := s.participants.Create(ctx, participant); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create participant")
	}
	return participant, nil
}

// List returns participants with pagination metadata.
func (s *AdmissionService) List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, *models.Pagination, error) {
	participants, total, err := s.participants.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list participants")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return participants, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// RunAdmissionPass sweeps the institution's waitlist in priority order and
// fills every seat it can. Each candidate's decision commits on its own, so
// an interrupted pass leaves valid state and can simply be re-run: anyone
// already admitted is no longer waiting and will not be drawn again.
func (s *AdmissionService) RunAdmissionPass(ctx context.Context, institutionID string) (*models.AdmissionPassResult, error) {
	if _, err := s.institutions.FindByID(ctx, institutionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institution")
	}

	groups, err := s.lottery.GroupByPriority(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	classes, err := s.classes.ListByInstitution(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes")
	}

	now := time.Now().UTC()
	result := &models.AdmissionPassResult{InstitutionID: institutionID, StartedAt: now}

	for _, tier := range []models.PriorityTier{models.TierFirst, models.TierSecond, models.TierThird} {
		for _, candidate := range groups[tier] {
			// A later, differently-aged candidate may still fit another
			// class, so a skip never ends the sweep.
			age := AgeInMonths(candidate.BirthDate, now)
			class := FindEligibleClass(age, classes)
			if class == nil {
				s.skipCandidate(ctx, result, candidate, tier)
				continue
			}

			if err := s.seats.Reserve(ctx, class.ID); err != nil {
				if appErrors.Is(err, appErrors.ErrCapacityExceeded) {
					// A manual admission raced us; trust the database and
					// retire this class locally.
					class.CurrentStudents = class.Capacity
					s.skipCandidate(ctx, result, candidate, tier)
					continue
				}
				result.FinishedAt = time.Now().UTC()
				return result, err
			}

			classID := class.ID
			reviewDate := time.Now().UTC()
			upd := models.ParticipantUpdate{ClassID: &classID, ReviewDate: &reviewDate}
			if err := s.queue.Exit(ctx, candidate.ID, models.StatusAdmitted, upd); err != nil {
				if relErr := s.seats.Release(ctx, class.ID); relErr != nil {
					s.logger.Error("failed to release compensated seat",
						zap.String("class_id", class.ID), zap.Error(relErr))
				}
				result.FinishedAt = time.Now().UTC()
				return result, err
			}

			class.CurrentStudents++
			result.Admitted++
			result.Outcomes = append(result.Outcomes, models.AdmissionOutcome{
				ParticipantID: candidate.ID,
				Tier:          tier,
				Admitted:      true,
				ClassID:       &classID,
			})
			if s.metrics != nil {
				s.metrics.AdmissionRecorded(tier)
			}
			s.logger.Info("participant admitted",
				zap.String("participant_id", candidate.ID),
				zap.String("class_id", class.ID),
				zap.Int("tier", int(tier)))
		}
	}

	result.FinishedAt = time.Now().UTC()
	s.logger.Info("admission pass finished",
		zap.String("institution_id", institutionID),
		zap.Int("admitted", result.Admitted),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *AdmissionService) skipCandidate(ctx context.Context, result *models.AdmissionPassResult, candidate models.Participant, tier models.PriorityTier) {
	if err := s.participants.RecordSkipReason(ctx, candidate.ID, models.SkipReasonNoEligibleClass); err != nil {
		s.logger.Warn("failed to record skip reason",
			zap.String("participant_id", candidate.ID), zap.Error(err))
	}
	result.Skipped++
	result.Outcomes = append(result.Outcomes, models.AdmissionOutcome{
		ParticipantID: candidate.ID,
		Tier:          tier,
		Admitted:      false,
		Reason:        models.SkipReasonNoEligibleClass,
	})
}

// ManualAdmit places one waiting participant into an explicitly chosen
// class, outside the lottery. The queue exit still runs so the remaining
// orders stay dense, and a full class fails the call before anything
// changes.
func (s *AdmissionService) ManualAdmit(ctx context.Context, participantID, classID string) (*models.Participant, error) {
	participant, err := s.participants.FindByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "participant not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participant")
	}
	if participant.Status != models.StatusWaiting {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "participant is not on the waitlist")
	}

	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.InstitutionID != participant.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "class belongs to a different institution")
	}

	if err := s.seats.Reserve(ctx, classID); err != nil {
		return nil, err
	}

	reviewDate := time.Now().UTC()
	upd := models.ParticipantUpdate{ClassID: &classID, ReviewDate: &reviewDate}
	if err := s.queue.Exit(ctx, participantID, models.StatusAdmitted, upd); err != nil {
		if relErr := s.seats.Release(ctx, classID); relErr != nil {
			s.logger.Error("failed to release compensated seat",
				zap.String("class_id", classID), zap.Error(relErr))
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AdmissionRecorded(participant.Tier())
	}
	s.logger.Info("participant manually admitted",
		zap.String("participant_id", participantID),
		zap.String("class_id", classID))

	return s.participants.FindByID(ctx, participantID)
}

// ChangeStatus applies a manual transition through the state machine. Exits
// from WAITING always renumber the queue; entries into WAITING always append
// at the tail.
func (s *AdmissionService) ChangeStatus(ctx context.Context, participantID string, newStatus models.ParticipantStatus, reason string) error {
	if !newStatus.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", newStatus))
	}
	participant, err := s.participants.FindByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "participant not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participant")
	}
	if !participant.Status.CanTransitionTo(newStatus) {
		return appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot transition from %s to %s", participant.Status, newStatus))
	}
	if newStatus == models.StatusAdmitted {
		// Admission always goes through ManualAdmit or the lottery pass so
		// a seat is reserved first.
		return appErrors.Clone(appErrors.ErrInvalidTransition, "admission requires a class; use the admit endpoint")
	}

	reviewDate := time.Now().UTC()
	upd := models.ParticipantUpdate{ReviewDate: &reviewDate}
	if reason != "" {
		upd.Reason = &reason
	}

	switch {
	case participant.Status == models.StatusWaiting:
		return s.queue.Exit(ctx, participantID, newStatus, upd)
	case newStatus == models.StatusWaiting:
		_, err := s.queue.Enter(ctx, participantID)
		return err
	default:
		if err := s.participants.UpdateStatus(ctx, participantID, newStatus, upd); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "participant not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update participant status")
		}
		if newStatus == models.StatusWithdrawn && participant.ClassID != nil {
			// A withdrawn participant gives their seat back.
			if err := s.seats.Release(ctx, *participant.ClassID); err != nil {
				s.logger.Warn("failed to release seat on withdrawal",
					zap.String("participant_id", participantID),
					zap.String("class_id", *participant.ClassID),
					zap.Error(err))
			}
		}
		return nil
	}
}

// GetWaitlistSnapshot returns the institution's ordered waitlist with each
// child's age resolved to whole months. Snapshots are cached briefly and
// invalidated by every queue mutation.
func (s *AdmissionService) GetWaitlistSnapshot(ctx context.Context, institutionID string) ([]models.WaitlistEntry, error) {
	key := snapshotKey(institutionID)
	if s.cache != nil {
		var cached []models.WaitlistEntry
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.CacheHit()
			}
			return cached, nil
		}
		if s.metrics != nil {
			s.metrics.CacheMiss()
		}
	}

	if _, err := s.institutions.FindByID(ctx, institutionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institution")
	}

	waiting, err := s.participants.ListWaiting(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waiting participants")
	}

	now := time.Now().UTC()
	entries := make([]models.WaitlistEntry, 0, len(waiting))
	for _, p := range waiting {
		entries = append(entries, models.WaitlistEntry{
			Participant: p,
			AgeMonths:   AgeInMonths(p.BirthDate, now),
		})
	}

	if s.metrics != nil {
		s.metrics.SetWaitlistSize(institutionID, len(entries))
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, entries, s.snapshotTTL); err != nil {
			s.logger.Warn("failed to cache waitlist snapshot",
				zap.String("institution_id", institutionID), zap.Error(err))
		}
	}
	return entries, nil
}
