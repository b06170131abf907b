package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/constants"
)

// CountSession is one counting effort by one user.
type CountSession struct {
	ID                 uuid.UUID               `json:"id"`
	SessionNumber      string                  `json:"session_number"`
	UserID             string                  `json:"user_id"`
	Status             constants.SessionStatus `json:"status"`
	LastActivityAt     time.Time               `json:"last_activity_at"`
	CancellationReason *string                 `json:"cancellation_reason,omitempty"`
	TotalRolls         int                     `json:"total_rolls"`
	CreatedAt          time.Time               `json:"created_at"`
	EndedAt            *time.Time              `json:"ended_at,omitempty"`
}
