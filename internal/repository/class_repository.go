package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/paud-admission-api/internal/models"
)

// ClassRepository handles class rows and their capacity counters. The
// counters are mutated exclusively through Reserve and Release; nothing else
// in the system writes current_students.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

const classColumns = `id, institution_id, name, capacity, current_students, min_age_months, max_age_months, created_at, updated_at`

// FindByID returns a class by its ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := fmt.Sprintf(`SELECT %s FROM classes WHERE id = $1`, classColumns)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListByInstitution returns the classes of an institution ordered by the
// lower age bound, which is the stable iteration order the matcher relies on.
func (r *ClassRepository) ListByInstitution(ctx context.Context, institutionID string) ([]models.Class, error) {
	query := fmt.Sprintf(`SELECT %s FROM classes WHERE institution_id = $1 ORDER BY min_age_months, id`, classColumns)
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, institutionID); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// Reserve atomically takes one seat. The capacity check and the increment
// are a single conditional UPDATE, so two racing reservations can never both
// claim the last seat. Returns false without mutating when the class is full.
func (r *ClassRepository) Reserve(ctx context.Context, classID string) (bool, error) {
	const query = `UPDATE classes SET current_students = current_students + 1, updated_at = NOW()
        WHERE id = $1 AND current_students < capacity`
	res, err := r.db.ExecContext(ctx, query, classID)
	if err != nil {
		return false, fmt.Errorf("reserve seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve seat result: %w", err)
	}
	if affected == 0 {
		// Full class and missing class both yield zero rows; distinguish.
		var exists int
		if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM classes WHERE id = $1`, classID); err != nil {
			if err == sql.ErrNoRows {
				return false, sql.ErrNoRows
			}
			return false, fmt.Errorf("check class: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// Release frees one previously reserved seat, flooring at zero.
func (r *ClassRepository) Release(ctx context.Context, classID string) error {
	const query = `UPDATE classes SET current_students = current_students - 1, updated_at = NOW()
        WHERE id = $1 AND current_students > 0`
	if _, err := r.db.ExecContext(ctx, query, classID); err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}

// CapacitySummary sums capacity and enrollment across all classes of an
// institution.
func (r *ClassRepository) CapacitySummary(ctx context.Context, institutionID string) (*models.InstitutionCapacity, error) {
	const query = `SELECT $1 AS institution_id, COALESCE(SUM(capacity), 0) AS total_capacity,
        COALESCE(SUM(current_students), 0) AS total_enrolled
        FROM classes WHERE institution_id = $1`
	var summary models.InstitutionCapacity
	if err := r.db.GetContext(ctx, &summary, query, institutionID); err != nil {
		return nil, fmt.Errorf("capacity summary: %w", err)
	}
	summary.RemainingSeats = summary.TotalCapacity - summary.TotalEnrolled
	return &summary, nil
}
