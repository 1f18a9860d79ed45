package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/paud-admission-api/internal/models"
)

// InstitutionRepository exposes the narrow institution reads the admission
// core needs. Institution CRUD is owned by a separate administrative service.
type InstitutionRepository struct {
	db *sqlx.DB
}

// NewInstitutionRepository constructs the repository.
func NewInstitutionRepository(db *sqlx.DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

// FindByID returns an institution by its ID.
func (r *InstitutionRepository) FindByID(ctx context.Context, id string) (*models.Institution, error) {
	const query = `SELECT id, name, address, active, created_at, updated_at FROM institutions WHERE id = $1`
	var institution models.Institution
	if err := r.db.GetContext(ctx, &institution, query, id); err != nil {
		return nil, err
	}
	return &institution, nil
}
