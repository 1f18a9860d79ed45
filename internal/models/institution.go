package models

import "time"

// Institution is an early-childhood education site. It owns a set of classes
// and is the scope boundary for waitlist ordering: order values of different
// institutions are never compared or renumbered together.
type Institution struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// InstitutionCapacity is the capacity rollup across all classes of one
// institution. Used for reporting, never for per-class admission decisions.
type InstitutionCapacity struct {
	InstitutionID  string `db:"institution_id" json:"institution_id"`
	TotalCapacity  int    `db:"total_capacity" json:"total_capacity"`
	TotalEnrolled  int    `db:"total_enrolled" json:"total_enrolled"`
	RemainingSeats int    `json:"remaining_seats"`
}
