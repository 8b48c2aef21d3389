package plugin

import (
	"time"

	"github.com/google/uuid"
)

// PlayerSummary captures a snapshot of an online player at the moment the summary
// was produced.
type PlayerSummary struct {
	UUID   uuid.UUID
	Name   string
	Locale string
	Joined time.Time
}
