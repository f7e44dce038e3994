package document

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an uploaded PDF. The same values are
// used for in-flight upload items and for catalog entries.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// PDFContentType is the only media type the pipeline accepts.
const PDFContentType = "application/pdf"

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusDone, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next follows the graph
//
//	uploading -> processing -> done
//	uploading -> error, processing -> error
//
// The empty status stands for "not yet enqueued" and may only move to uploading.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case "":
		return next == StatusUploading
	case StatusUploading:
		return next == StatusProcessing || next == StatusError
	case StatusProcessing:
		return next == StatusDone || next == StatusError
	}
	return false
}

// Predecessors lists the states from which next may be entered.
func Predecessors(next Status) []Status {
	var out []Status
	for _, s := range []Status{"", StatusUploading, StatusProcessing, StatusDone, StatusError} {
		if s.CanTransition(next) {
			out = append(out, s)
		}
	}
	return out
}

// StoragePath returns the object path for a document id. One document, one path.
func StoragePath(id string) string {
	return fmt.Sprintf("pdfs/%s.pdf", id)
}

// Document is a catalog entry for an ingested (or failed) PDF.
type Document struct {
	ID          string    `json:"id" bson:"id"`
	Filename    string    `json:"filename" bson:"filename"`
	StoragePath string    `json:"storagePath" bson:"storagePath"`
	ContentType string    `json:"contentType" bson:"contentType"`
	Size        int64     `json:"size" bson:"size"`
	Status      Status    `json:"status" bson:"status"`
	Error       string    `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}
