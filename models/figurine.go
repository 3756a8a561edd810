package models

import "time"

// Figurine is the user-visible gallery entity a finished conversion attaches
// to. At most one figurine exists per conversion task.
type Figurine struct {
	ID             string
	OwnerID        string
	Title          string
	SourceImageURL string
	ModelURL       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
