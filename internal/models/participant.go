package models

import "time"

// ParticipantStatus enumerates the admission lifecycle states of a child
// applicant. Only StatusWaiting participates in waitlist ordering.
type ParticipantStatus string

const (
	StatusUnderReview    ParticipantStatus = "UNDER_REVIEW"
	StatusNeedsDocuments ParticipantStatus = "NEEDS_DOCUMENTS"
	StatusRejected       ParticipantStatus = "REJECTED"
	StatusWaiting        ParticipantStatus = "WAITING"
	StatusAdmitted       ParticipantStatus = "ADMITTED"
	StatusWithdrawn      ParticipantStatus = "WITHDRAWN"
	StatusRevokePending  ParticipantStatus = "REVOKE_PENDING"
)

// Valid reports whether the status is a known lifecycle state.
func (s ParticipantStatus) Valid() bool {
	switch s {
	case StatusUnderReview, StatusNeedsDocuments, StatusRejected,
		StatusWaiting, StatusAdmitted, StatusWithdrawn, StatusRevokePending:
		return true
	}
	return false
}

// Terminal reports whether the status ends the application cycle.
func (s ParticipantStatus) Terminal() bool {
	return s == StatusAdmitted || s == StatusRejected || s == StatusWithdrawn
}

var allowedTransitions = map[ParticipantStatus][]ParticipantStatus{
	StatusUnderReview:    {StatusNeedsDocuments, StatusRejected, StatusWaiting},
	StatusNeedsDocuments: {StatusUnderReview, StatusRejected, StatusWaiting},
	StatusWaiting:        {StatusAdmitted, StatusRejected, StatusWithdrawn, StatusRevokePending},
	StatusRevokePending:  {StatusWithdrawn, StatusWaiting},
}

// CanTransitionTo reports whether the admission state machine allows moving
// from s to next. Terminal states allow nothing.
func (s ParticipantStatus) CanTransitionTo(next ParticipantStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParticipantRole distinguishes the child applicant from the parent contact
// on the same application.
type ParticipantRole string

const (
	RoleChild  ParticipantRole = "CHILD"
	RoleParent ParticipantRole = "PARENT"
)

// PriorityTier is the coarse admission-priority class used by the lottery.
// Lower tiers are always drawn before higher ones.
type PriorityTier int

const (
	TierFirst  PriorityTier = 1
	TierSecond PriorityTier = 2
	TierThird  PriorityTier = 3
)

// TierForIdentity maps the raw identity type to a priority tier. Identity
// type 1 (sibling of a current student) and 2 (resident) keep their own
// tiers; everything else is the general pool.
func TierForIdentity(identityType int) PriorityTier {
	switch identityType {
	case 1:
		return TierFirst
	case 2:
		return TierSecond
	default:
		return TierThird
	}
}

// Participant is a child applicant within an enrollment application.
// CurrentOrder is meaningful only while Status is WAITING; among all waiting
// participants of one institution the orders form a dense 1..N sequence.
type Participant struct {
	ID            string            `db:"id" json:"id"`
	ApplicationID string            `db:"application_id" json:"application_id"`
	InstitutionID string            `db:"institution_id" json:"institution_id"`
	NationalID    string            `db:"national_id" json:"national_id"`
	FullName      string            `db:"full_name" json:"full_name"`
	BirthDate     time.Time         `db:"birth_date" json:"birth_date"`
	Role          ParticipantRole   `db:"role" json:"role"`
	Status        ParticipantStatus `db:"status" json:"status"`
	CurrentOrder  *int              `db:"current_order" json:"current_order,omitempty"`
	ClassID       *string           `db:"class_id" json:"class_id,omitempty"`
	IdentityType  int               `db:"identity_type" json:"identity_type"`
	ReviewDate    *time.Time        `db:"review_date" json:"review_date,omitempty"`
	Reason        *string           `db:"reason" json:"reason,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// Tier returns the lottery tier of the participant.
func (p Participant) Tier() PriorityTier {
	return TierForIdentity(p.IdentityType)
}

// ParticipantFilter encapsulates allowed search parameters for listing
// participants. Zero values mean "no filter".
type ParticipantFilter struct {
	InstitutionID string
	Status        ParticipantStatus
	Search        string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// ParticipantUpdate carries a partial update at the persistence boundary.
// Nil fields are left unchanged by the repository.
type ParticipantUpdate struct {
	Status     *ParticipantStatus
	ClassID    *string
	Reason     *string
	ReviewDate *time.Time
}

// WaitlistEntry is one row of an institution's ordered waitlist snapshot,
// with the child's age resolved to whole months.
type WaitlistEntry struct {
	Participant
	AgeMonths int     `json:"age_months"`
	ClassName *string `db:"class_name" json:"class_name,omitempty"`
}
