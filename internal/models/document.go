package models

import (
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
)

// DocumentRef describes one discovered document. It is a value type and is
// never mutated after construction.
type DocumentRef struct {
	Name       string
	Path       string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// NewDocumentRef validates and builds a DocumentRef. An empty name defaults
// to the base name of path.
func NewDocumentRef(name, path string, createdAt, modifiedAt time.Time) (DocumentRef, error) {
	if path == "" {
		return DocumentRef{}, errors.New("document path must not be empty")
	}
	if name == "" {
		name = filepath.Base(path)
	}
	if name == "." || name == string(filepath.Separator) {
		return DocumentRef{}, errors.Newf("document path %q has no file name", path)
	}
	return DocumentRef{
		Name:       name,
		Path:       path,
		CreatedAt:  createdAt,
		ModifiedAt: modifiedAt,
	}, nil
}

// Document statuses tracked in Firestore by the resize function.
const (
	StatusResizing = "RESIZING"
	StatusResized  = "RESIZED"
	StatusFailed   = "FAILED"
)

// DocumentRecord is the Firestore record the resize function keeps per
// source object. It lets repeated upload events for the same content be
// skipped.
type DocumentRecord struct {
	FileHash            string    `firestore:"fileHash,omitempty"`
	SourceURI           string    `firestore:"sourceUri,omitempty"`
	OutputURI           string    `firestore:"outputUri,omitempty"`
	Status              string    `firestore:"status,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	PageCount           int       `firestore:"pageCount,omitempty"`
	TargetFormat        string    `firestore:"targetFormat,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"`
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
}
