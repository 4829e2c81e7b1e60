package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus string

const (
	DocUploading  DocumentStatus = "uploading"
	DocProcessing DocumentStatus = "processing"
	DocCompleted  DocumentStatus = "completed"
	DocFailed     DocumentStatus = "failed"
)

// closed set; anything else is rejected at the boundary
var documentStatuses = map[DocumentStatus]bool{
	DocUploading:  true,
	DocProcessing: true,
	DocCompleted:  true,
	DocFailed:     true,
}

func (s DocumentStatus) Valid() bool {
	return documentStatuses[s]
}

// Terminal reports whether the document reached a final state. Terminal
// documents accept no new jobs and never move backward.
func (s DocumentStatus) Terminal() bool {
	return s == DocCompleted || s == DocFailed
}

// Document is one uploaded document tracked through the processing pipeline.
// Status only moves forward (uploading -> processing -> completed), except
// that any state may fall to failed. ProgressPercentage never decreases
// while processing and reaches 100 only on completion.
type Document struct {
	ID                 uuid.UUID      `json:"id"`
	Status             DocumentStatus `json:"status"`
	ProgressPercentage int            `json:"progressPercentage"`
	ErrorMessage       string         `json:"errorMessage,omitempty"`
	OriginalFilename   string         `json:"originalFilename"`
	StorageKey         string         `json:"storageKey"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// ParseDocumentStatus validates an incoming status string against the closed set.
func ParseDocumentStatus(s string) (DocumentStatus, error) {
	status := DocumentStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("invalid document status: %q", s)
	}
	return status, nil
}
