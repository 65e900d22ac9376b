package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunLogEntry captures a problem hit during a batch run. RowNumber points at
// the offending source row when one is known.
type RunLogEntry struct {
	ID           int64     `json:"id"`
	RunID        uuid.UUID `json:"run_id"`
	Job          string    `json:"job"`
	RowNumber    *int      `json:"row_number,omitempty"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}
