package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry is an append-only audit record generated by a cluster node. There
// is no update or delete path for these rows.
type LogEntry struct {
	ID         uuid.UUID `json:"id"`
	Host       string    `json:"host"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	Created    time.Time `json:"created"`
	Stacktrace *string   `json:"stacktrace,omitempty"`
}

// LogFilter narrows log entry listings.
type LogFilter struct {
	Started *time.Time
	Ended   *time.Time
	Levels  []string
	Limit   int
	Offset  int
}
