package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/paud-admission-api/internal/models"
)

// ParticipantRepository handles persistence of child applicants, including
// the transactional waitlist-order mutations. Every order read/write pair
// runs inside one transaction that first locks the owning institution row,
// so queue operations on the same institution serialize while different
// institutions proceed in parallel.
type ParticipantRepository struct {
	db *sqlx.DB
}

// NewParticipantRepository constructs the repository.
func NewParticipantRepository(db *sqlx.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

const participantColumns = `id, application_id, institution_id, national_id, full_name, birth_date, role,
        status, current_order, class_id, identity_type, review_date, reason, created_at, updated_at`

// FindByID returns a participant by its ID.
func (r *ParticipantRepository) FindByID(ctx context.Context, id string) (*models.Participant, error) {
	query := fmt.Sprintf(`SELECT %s FROM participants WHERE id = $1`, participantColumns)
	var participant models.Participant
	if err := r.db.GetContext(ctx, &participant, query, id); err != nil {
		return nil, err
	}
	return &participant, nil
}

// List returns participants filtered by the provided criteria.
func (r *ParticipantRepository) List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, int, error) {
	base := `FROM participants p`
	var conditions []string
	var args []interface{}

	if filter.InstitutionID != "" {
		conditions = append(conditions, fmt.Sprintf("p.institution_id = $%d", len(args)+1))
		args = append(args, filter.InstitutionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(p.full_name ILIKE $%d OR p.national_id ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":    "p.created_at",
		"full_name":     "p.full_name",
		"current_order": "p.current_order",
		"birth_date":    "p.birth_date",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "p.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT p.id, p.application_id, p.institution_id, p.national_id, p.full_name, p.birth_date, p.role,
        p.status, p.current_order, p.class_id, p.identity_type, p.review_date, p.reason, p.created_at, p.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var participants []models.Participant
	if err := r.db.SelectContext(ctx, &participants, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list participants: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count participants: %w", err)
	}
	return participants, total, nil
}

// Create persists a new participant record.
func (r *ParticipantRepository) Create(ctx context.Context, participant *models.Participant) error {
	if participant.ID == "" {
		participant.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if participant.CreatedAt.IsZero() {
		participant.CreatedAt = now
	}
	participant.UpdatedAt = now
	if participant.Status == "" {
		participant.Status = models.StatusUnderReview
	}
	if participant.Role == "" {
		participant.Role = models.RoleChild
	}
	const query = `INSERT INTO participants (id, application_id, institution_id, national_id, full_name, birth_date, role,
        status, current_order, class_id, identity_type, review_date, reason, created_at, updated_at)
        VALUES (:id, :application_id, :institution_id, :national_id, :full_name, :birth_date, :role,
        :status, :current_order, :class_id, :identity_type, :review_date, :reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, participant); err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

// ListWaiting returns all waiting participants of an institution ordered by
// their queue position.
func (r *ParticipantRepository) ListWaiting(ctx context.Context, institutionID string) ([]models.Participant, error) {
	query := fmt.Sprintf(`SELECT %s FROM participants WHERE institution_id = $1 AND status = $2 ORDER BY current_order`, participantColumns)
	var participants []models.Participant
	if err := r.db.SelectContext(ctx, &participants, query, institutionID, models.StatusWaiting); err != nil {
		return nil, fmt.Errorf("list waiting participants: %w", err)
	}
	return participants, nil
}

// WaitingOrders returns the raw order values of an institution's waiting
// participants, ascending. Used for invariant verification.
func (r *ParticipantRepository) WaitingOrders(ctx context.Context, institutionID string) ([]int, error) {
	const query = `SELECT current_order FROM participants WHERE institution_id = $1 AND status = $2 ORDER BY current_order`
	var orders []int
	if err := r.db.SelectContext(ctx, &orders, query, institutionID, models.StatusWaiting); err != nil {
		return nil, fmt.Errorf("load waiting orders: %w", err)
	}
	return orders, nil
}

// EnterWaiting moves a participant into the waiting queue, assigning the
// next order. The max-order read and the write share one transaction and
// the institution row lock, so concurrent entries cannot observe the same
// maximum.
func (r *ParticipantRepository) EnterWaiting(ctx context.Context, participantID, institutionID string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin enter waiting: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := lockInstitution(ctx, tx, institutionID); err != nil {
		return 0, err
	}

	var maxOrder int
	const maxQuery = `SELECT COALESCE(MAX(current_order), 0) FROM participants WHERE institution_id = $1 AND status = $2`
	if err := tx.GetContext(ctx, &maxOrder, maxQuery, institutionID, models.StatusWaiting); err != nil {
		return 0, fmt.Errorf("next order: %w", err)
	}
	next := maxOrder + 1

	const update = `UPDATE participants SET status = $2, current_order = $3, reason = NULL, updated_at = NOW()
        WHERE id = $1 AND institution_id = $4`
	res, err := tx.ExecContext(ctx, update, participantID, models.StatusWaiting, next, institutionID)
	if err != nil {
		return 0, fmt.Errorf("enter waiting: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return 0, sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit enter waiting: %w", err)
	}
	return next, nil
}

// ExitWaiting removes a participant from the waiting queue in one
// transaction: the participant's order is cleared, the new status and any
// partial fields are written, and every waiting participant behind it moves
// up by one. Returns sql.ErrNoRows when the participant is not waiting.
func (r *ParticipantRepository) ExitWaiting(ctx context.Context, participantID, institutionID string, newStatus models.ParticipantStatus, upd models.ParticipantUpdate) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin exit waiting: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := lockInstitution(ctx, tx, institutionID); err != nil {
		return err
	}

	var currentOrder sql.NullInt64
	const orderQuery = `SELECT current_order FROM participants WHERE id = $1 AND institution_id = $2 AND status = $3 FOR UPDATE`
	if err := tx.GetContext(ctx, &currentOrder, orderQuery, participantID, institutionID, models.StatusWaiting); err != nil {
		return err
	}
	if !currentOrder.Valid {
		return sql.ErrNoRows
	}

	const update = `UPDATE participants SET status = $2, current_order = NULL,
        class_id = COALESCE($3, class_id), reason = COALESCE($4, reason), review_date = COALESCE($5, review_date),
        updated_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, participantID, newStatus, upd.ClassID, upd.Reason, upd.ReviewDate); err != nil {
		return fmt.Errorf("exit waiting: %w", err)
	}

	const renumber = `UPDATE participants SET current_order = current_order - 1, updated_at = NOW()
        WHERE institution_id = $1 AND status = $2 AND current_order > $3`
	if _, err := tx.ExecContext(ctx, renumber, institutionID, models.StatusWaiting, currentOrder.Int64); err != nil {
		return fmt.Errorf("renumber queue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit exit waiting: %w", err)
	}
	return nil
}

// ReassignOrders zeroes and rewrites the whole waiting queue of an
// institution to 1..N following orderedIDs. Only used as the lottery
// preparation step; the zero-then-rewrite happens inside one transaction so
// the transient gap is never visible.
func (r *ParticipantRepository) ReassignOrders(ctx context.Context, institutionID string, orderedIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reassign orders: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := lockInstitution(ctx, tx, institutionID); err != nil {
		return err
	}

	const reset = `UPDATE participants SET current_order = 0, updated_at = NOW() WHERE institution_id = $1 AND status = $2`
	if _, err := tx.ExecContext(ctx, reset, institutionID, models.StatusWaiting); err != nil {
		return fmt.Errorf("reset orders: %w", err)
	}

	const assign = `UPDATE participants SET current_order = $3, updated_at = NOW()
        WHERE id = $1 AND institution_id = $2 AND status = $4`
	for i, id := range orderedIDs {
		res, err := tx.ExecContext(ctx, assign, id, institutionID, i+1, models.StatusWaiting)
		if err != nil {
			return fmt.Errorf("assign order: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return sql.ErrNoRows
		}
	}

	var stale int
	const staleQuery = `SELECT COUNT(*) FROM participants WHERE institution_id = $1 AND status = $2 AND current_order = 0`
	if err := tx.GetContext(ctx, &stale, staleQuery, institutionID, models.StatusWaiting); err != nil {
		return fmt.Errorf("verify reassigned orders: %w", err)
	}
	if stale > 0 {
		return fmt.Errorf("reassign orders left %d participants without a position", stale)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reassign orders: %w", err)
	}
	return nil
}

// UpdateStatus writes a status transition that does not involve the waiting
// queue. Nil fields in upd leave the stored values unchanged.
func (r *ParticipantRepository) UpdateStatus(ctx context.Context, id string, status models.ParticipantStatus, upd models.ParticipantUpdate) error {
	const query = `UPDATE participants SET status = $2,
        class_id = COALESCE($3, class_id), reason = COALESCE($4, reason), review_date = COALESCE($5, review_date),
        updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, upd.ClassID, upd.Reason, upd.ReviewDate)
	if err != nil {
		return fmt.Errorf("update participant status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecordSkipReason notes why a waiting candidate was passed over during an
// admission pass without touching status or order.
func (r *ParticipantRepository) RecordSkipReason(ctx context.Context, id, reason string) error {
	const query = `UPDATE participants SET reason = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("record skip reason: %w", err)
	}
	return nil
}

func lockInstitution(ctx context.Context, tx *sqlx.Tx, institutionID string) error {
	var id string
	const query = `SELECT id FROM institutions WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &id, query, institutionID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock institution: %w", err)
	}
	return nil
}
