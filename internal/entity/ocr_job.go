package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/constants"
)

// OCRJob represents one unit of label extraction work for data transfer between layers.
type OCRJob struct {
	ID           uuid.UUID           `json:"id"`
	RollID       uuid.UUID           `json:"roll_id"`
	ImagePath    string              `json:"image_path"`
	Status       constants.JobStatus `json:"status"`
	Attempts     int                 `json:"attempts"`
	MaxAttempts  int                 `json:"max_attempts"`
	Result       json.RawMessage     `json:"result,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}

// CanRetry reports whether another attempt fits in the job's budget.
func (j *OCRJob) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}
