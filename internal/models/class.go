package models

import "time"

// Class is a fixed-capacity group within an institution serving one age band.
// The age band is a half-open interval in whole months: [MinAgeMonths, MaxAgeMonths).
type Class struct {
	ID              string    `db:"id" json:"id"`
	InstitutionID   string    `db:"institution_id" json:"institution_id"`
	Name            string    `db:"name" json:"name"`
	Capacity        int       `db:"capacity" json:"capacity"`
	CurrentStudents int       `db:"current_students" json:"current_students"`
	MinAgeMonths    int       `db:"min_age_months" json:"min_age_months"`
	MaxAgeMonths    int       `db:"max_age_months" json:"max_age_months"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// HasCapacity reports whether the class can take one more child.
func (c Class) HasCapacity() bool {
	return c.CurrentStudents < c.Capacity
}

// AcceptsAge reports whether ageMonths falls inside the class age band.
func (c Class) AcceptsAge(ageMonths int) bool {
	return ageMonths >= c.MinAgeMonths && ageMonths < c.MaxAgeMonths
}
