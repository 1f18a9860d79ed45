package models

import "time"

// SkipReasonNoEligibleClass is recorded on a waiting participant when no
// class can take them during an admission pass.
const SkipReasonNoEligibleClass = "no eligible class / institution full"

// AdmissionOutcome records one candidate decision inside an admission pass.
type AdmissionOutcome struct {
	ParticipantID string       `json:"participant_id"`
	Tier          PriorityTier `json:"tier"`
	Admitted      bool         `json:"admitted"`
	ClassID       *string      `json:"class_id,omitempty"`
	Reason        string       `json:"reason,omitempty"`
}

// AdmissionPassResult summarises a full priority-respecting sweep over an
// institution's waitlist.
type AdmissionPassResult struct {
	InstitutionID string             `json:"institution_id"`
	Admitted      int                `json:"admitted"`
	Skipped       int                `json:"skipped"`
	Outcomes      []AdmissionOutcome `json:"outcomes"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
}
