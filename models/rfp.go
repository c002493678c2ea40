package models

import (
	"time"
)

// RFPStatus represents the lifecycle status of an RFP
type RFPStatus string

const (
	StatusOpen     RFPStatus = "open"
	StatusExtended RFPStatus = "extended"
	StatusClosed   RFPStatus = "closed"
)

// Valid reports whether s is one of the known statuses
func (s RFPStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusExtended, StatusClosed:
		return true
	}
	return false
}

// Document is the stored file an RFP owns
type Document struct {
	FileName   string `json:"fileName"`
	FileURL    string `json:"fileUrl"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	StorageKey string `json:"-"`
}

// RFP represents a published request for proposal.
// Document fields are flattened into the JSON object.
type RFP struct {
	ID             string    `json:"id"`
	ProjectName    string    `json:"projectName"`
	ProductSummary string    `json:"productSummary"`
	Deadline       time.Time `json:"deadline"`
	DurationDays   int       `json:"durationDays"`
	Status         RFPStatus `json:"status"`

	Document

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Expired reports whether the deadline is strictly before now
func (r *RFP) Expired(now time.Time) bool {
	return r.Deadline.Before(now)
}

// RFPFields holds the mutable metadata of an RFP after validation
type RFPFields struct {
	ProjectName    string
	ProductSummary string
	Deadline       time.Time
	DurationDays   int
	Status         RFPStatus
}
