package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/paud-admission-api/internal/models"
	"github.com/noah-isme/paud-admission-api/internal/repository"
	appErrors "github.com/noah-isme/paud-admission-api/pkg/errors"
	"github.com/noah-isme/paud-admission-api/pkg/export"
	"github.com/noah-isme/paud-admission-api/pkg/jobs"
	"github.com/noah-isme/paud-admission-api/pkg/storage"
)

type reportJobRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
}

type reportEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type waitlistSnapshotSource interface {
	GetWaitlistSnapshot(ctx context.Context, institutionID string) ([]models.WaitlistEntry, error)
}

type admittedLister interface {
	List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, int, error)
}

type reportClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// CreateReportRequest describes a report generation request.
type CreateReportRequest struct {
	Type          models.ReportType   `json:"type" validate:"required,oneof=waitlist admission"`
	InstitutionID string              `json:"institution_id" validate:"required"`
	Format        models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ReportService coordinates report job persistence and asynchronous
// rendering. Files land in local storage and downloads go through signed
// tokens so result URLs can be handed to clients directly.
type ReportService struct {
	repo      reportJobRepository
	queue     reportEnqueuer
	snapshots waitlistSnapshotSource
	admitted  admittedLister
	classes   reportClassReader
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	storage   *storage.LocalStorage
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger

	// maxRetries mirrors the worker queue's retry limit so the final
	// attempt is marked FAILED instead of requeued.
	maxRetries int
}

// NewReportService constructs ReportService.
func NewReportService(
	repo reportJobRepository,
	queue reportEnqueuer,
	snapshots waitlistSnapshotSource,
	admitted admittedLister,
	classes reportClassReader,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	maxRetries int,
	validate *validator.Validate,
	logger *zap.Logger,
) *ReportService {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		repo:       repo,
		queue:      queue,
		snapshots:  snapshots,
		admitted:   admitted,
		classes:    classes,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		storage:    store,
		signer:     signer,
		validator:  validate,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// CreateJob persists a queued report job and hands it to the worker pool.
func (s *ReportService) CreateJob(ctx context.Context, req CreateReportRequest, createdBy string) (*models.ReportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report request")
	}

	job := &models.ReportJob{
		ID:   uuid.NewString(),
		Type: req.Type,
		Params: models.ReportJobParams{
			InstitutionID: req.InstitutionID,
			Format:        req.Format,
		},
		Status:    models.ReportStatusQueued,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		msg := err.Error()
		if uerr := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       statusPtr(models.ReportStatusFailed),
			ErrorMessage: &msg,
		}); uerr != nil {
			s.logger.Error("failed to mark report job failed", zap.String("job_id", job.ID), zap.Error(uerr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}

	s.logger.Info("report job queued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("institution_id", req.InstitutionID))
	return job, nil
}

// GetStatus returns job metadata including the signed result URL once
// finished.
func (s *ReportService) GetStatus(ctx context.Context, jobID string) (*models.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	return job, nil
}

// ResolveDownload validates a signed token and opens the rendered file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*models.ReportJob, *os.File, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	job, err := s.GetStatus(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != models.ReportStatusFinished || job.ResultURL == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "report is not ready")
	}
	if !strings.HasSuffix(*job.ResultURL, token) {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "token does not match report job")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report file")
	}
	return job, file, nil
}

// RecoverPendingJobs re-enqueues jobs that were still queued when the
// process last stopped.
func (s *ReportService) RecoverPendingJobs(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.ListQueued(ctx, limit)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list queued report jobs")
	}
	requeued := 0
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Warn("failed to requeue report job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	if requeued > 0 {
		s.logger.Info("recovered pending report jobs", zap.Int("count", requeued))
	}
	return requeued, nil
}

// HandleJob is the worker entrypoint. It renders the report and records the
// outcome; errors are returned so the queue can retry.
func (s *ReportService) HandleJob(ctx context.Context, job jobs.Job) error {
	record, err := s.repo.GetByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", job.ID, err)
	}
	if record.Status == models.ReportStatusFinished {
		return nil
	}

	if err := s.repo.Update(ctx, record.ID, repository.UpdateReportJobParams{
		Status: statusPtr(models.ReportStatusProcessing),
	}); err != nil {
		return fmt.Errorf("mark report job processing: %w", err)
	}

	if err := s.render(ctx, record); err != nil {
		final := job.Attempt >= s.maxRetries
		if final {
			msg := err.Error()
			now := time.Now().UTC()
			if uerr := s.repo.Update(ctx, record.ID, repository.UpdateReportJobParams{
				Status:       statusPtr(models.ReportStatusFailed),
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); uerr != nil {
				s.logger.Error("failed to mark report job failed", zap.String("job_id", record.ID), zap.Error(uerr))
			}
		} else {
			if uerr := s.repo.Update(ctx, record.ID, repository.UpdateReportJobParams{
				Status: statusPtr(models.ReportStatusQueued),
			}); uerr != nil {
				s.logger.Error("failed to requeue report job status", zap.String("job_id", record.ID), zap.Error(uerr))
			}
		}
		return err
	}
	return nil
}

func (s *ReportService) render(ctx context.Context, job *models.ReportJob) error {
	var (
		dataset export.Dataset
		title   string
		err     error
	)
	switch job.Type {
	case models.ReportTypeWaitlist:
		dataset, err = s.waitlistDataset(ctx, job.Params.InstitutionID)
		title = "Daftar Antrian Peserta"
	case models.ReportTypeAdmission:
		dataset, err = s.admissionDataset(ctx, job.Params.InstitutionID)
		title = "Daftar Peserta Diterima"
	default:
		return fmt.Errorf("unsupported report type %q", job.Type)
	}
	if err != nil {
		return err
	}

	var payload []byte
	ext := "csv"
	switch job.Params.Format {
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
		ext = "pdf"
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		return fmt.Errorf("render %s report: %w", job.Params.Format, err)
	}

	relPath := fmt.Sprintf("reports/%s.%s", job.ID, ext)
	if _, err := s.storage.Save(relPath, payload); err != nil {
		return fmt.Errorf("store report file: %w", err)
	}

	url, _, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return fmt.Errorf("sign report url: %w", err)
	}

	now := time.Now().UTC()
	if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:     statusPtr(models.ReportStatusFinished),
		ResultURL:  &url,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("mark report job finished: %w", err)
	}

	s.logger.Info("report job finished",
		zap.String("job_id", job.ID),
		zap.String("path", relPath))
	return nil
}

func (s *ReportService) waitlistDataset(ctx context.Context, institutionID string) (export.Dataset, error) {
	entries, err := s.snapshots.GetWaitlistSnapshot(ctx, institutionID)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("load waitlist snapshot: %w", err)
	}
	dataset := export.Dataset{
		Headers: []string{"No. Antrian", "Nama", "NIK", "Usia (bulan)", "Prioritas", "Terdaftar"},
	}
	for _, e := range entries {
		order := ""
		if e.CurrentOrder != nil {
			order = strconv.Itoa(*e.CurrentOrder)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"No. Antrian":  order,
			"Nama":         e.FullName,
			"NIK":          e.NationalID,
			"Usia (bulan)": strconv.Itoa(e.AgeMonths),
			"Prioritas":    strconv.Itoa(int(e.Tier())),
			"Terdaftar":    e.CreatedAt.Format("2006-01-02"),
		})
	}
	return dataset, nil
}

func (s *ReportService) admissionDataset(ctx context.Context, institutionID string) (export.Dataset, error) {
	admitted, _, err := s.admitted.List(ctx, models.ParticipantFilter{
		InstitutionID: institutionID,
		Status:        models.StatusAdmitted,
		PageSize:      1000,
	})
	if err != nil {
		return export.Dataset{}, fmt.Errorf("load admitted participants: %w", err)
	}

	classNames := make(map[string]string)
	dataset := export.Dataset{
		Headers: []string{"Nama", "NIK", "Kelas", "Tanggal Diterima"},
	}
	for _, p := range admitted {
		className := ""
		if p.ClassID != nil {
			name, ok := classNames[*p.ClassID]
			if !ok {
				class, err := s.classes.FindByID(ctx, *p.ClassID)
				if err == nil {
					name = class.Name
				}
				classNames[*p.ClassID] = name
			}
			className = name
		}
		reviewed := ""
		if p.ReviewDate != nil {
			reviewed = p.ReviewDate.Format("2006-01-02")
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Nama":             p.FullName,
			"NIK":              p.NationalID,
			"Kelas":            className,
			"Tanggal Diterima": reviewed,
		})
	}
	return dataset, nil
}

func statusPtr(s models.ReportStatus) *models.ReportStatus {
	return &s
}
