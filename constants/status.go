package constants

// JobStatus is the canonical status for rows in ocr_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "pending"    // waiting for a worker
	JobStatusProcessing JobStatus = "processing" // claimed by a worker
	JobStatusCompleted  JobStatus = "completed"  // result written
	JobStatusFailed     JobStatus = "failed"     // attempts exhausted
)

// Terminal reports whether no further automatic transition happens.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SessionStatus is the canonical status for rows in count_sessions.
type SessionStatus string

const (
	SessionStatusDraft            SessionStatus = "draft"
	SessionStatusActive           SessionStatus = "active"
	SessionStatusCountingComplete SessionStatus = "counting_complete"
	SessionStatusCancelled        SessionStatus = "cancelled"
)

// Resumable reports whether a session can still be counted into.
func (s SessionStatus) Resumable() bool {
	return s == SessionStatusDraft || s == SessionStatusActive
}

// ExpiredReason is stored as cancellation_reason when a session times out.
const ExpiredReason = "expired due to inactivity"

// ConfidenceLevel bands an overall extraction confidence.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// LevelFor maps a 0..100 confidence to its band.
func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 85:
		return ConfidenceHigh
	case confidence >= 60:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
