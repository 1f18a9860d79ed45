package service

import (
	"time"

	"github.com/noah-isme/paud-admission-api/internal/models"
)

// AgeInMonths returns the child's calendar age in whole months at the
// reference date: years times twelve plus months, minus one when the day of
// month has not been reached yet. Class age bands are expressed in whole
// months, so day-based truncation would misclassify children near a boundary.
func AgeInMonths(birthDate, at time.Time) int {
	by, bm, bd := birthDate.Date()
	ay, am, ad := at.Date()
	months := (ay-by)*12 + int(am) - int(bm)
	if ad < bd {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// FindEligibleClass returns the first class whose age band contains
// ageMonths and that still has a free seat. Classes must be supplied in a
// stable order (ascending min age, as ListByInstitution returns them). A nil
// result is not an error; it means the child cannot be admitted right now.
func FindEligibleClass(ageMonths int, classes []models.Class) *models.Class {
	for i := range classes {
		if classes[i].AcceptsAge(ageMonths) && classes[i].HasCapacity() {
			return &classes[i]
		}
	}
	return nil
}
