package domain

import "time"

// UsageLog records what one successful job cost.
type UsageLog struct {
	UserID          string
	JobID           string
	Variants        int
	PixelsProcessed int64
	BytesSaved      int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
