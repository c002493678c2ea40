package models

// RFPView names a listing preset (the "tab" query parameter)
type RFPView string

const (
	ViewRecent    RFPView = "recent"
	ViewCompleted RFPView = "completed"
	ViewExtended  RFPView = "extended"
)

// RFPSort names a listing order
type RFPSort string

const (
	SortUploadedAt RFPSort = "uploadedAt"
	SortDeadline   RFPSort = "deadline"
)
