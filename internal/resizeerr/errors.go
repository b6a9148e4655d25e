// Package resizeerr defines the error taxonomy shared by the resize pipeline.
//
// Configuration errors are fatal and abort a run before any work starts.
// Everything scoped to a single document is reported as a *TransformError and
// recorded in the run report instead of being returned to the caller.
package resizeerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies a failure.
type Kind string

const (
	KindUnknownFormat       Kind = "UnknownFormat"
	KindInvalidConfig       Kind = "InvalidConfig"
	KindDegenerateGeometry  Kind = "DegenerateGeometry"
	KindManifestNotFound    Kind = "ManifestNotFound"
	KindManifestRead        Kind = "ManifestReadError"
	KindDocumentUnavailable Kind = "DocumentUnavailable"
	KindOpen                Kind = "OpenError"
	KindWrite               Kind = "WriteError"
	KindPage                Kind = "PageError"
	KindTimeout             Kind = "Timeout"
	KindCancelled           Kind = "Cancelled"
)

// Sentinels, one per kind. Match with errors.Is.
var (
	ErrUnknownFormat       = errors.New("unknown target format")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrDegenerateGeometry  = errors.New("degenerate page geometry")
	ErrManifestNotFound    = errors.New("manifest not found")
	ErrManifestRead        = errors.New("manifest read error")
	ErrDocumentUnavailable = errors.New("document unavailable")
	ErrOpen                = errors.New("cannot open document")
	ErrWrite               = errors.New("cannot write document")
	ErrPage                = errors.New("page error")
	ErrTimeout             = errors.New("document timed out")
	ErrCancelled           = errors.New("run cancelled before document started")
)

// kinds lists every kind with its sentinel. KindOf returns the first match,
// so specific kinds come before the general KindInvalidConfig that Config
// marks every configuration error with.
var kinds = []struct {
	kind     Kind
	sentinel error
}{
	{KindUnknownFormat, ErrUnknownFormat},
	{KindDegenerateGeometry, ErrDegenerateGeometry},
	{KindManifestNotFound, ErrManifestNotFound},
	{KindManifestRead, ErrManifestRead},
	{KindDocumentUnavailable, ErrDocumentUnavailable},
	{KindOpen, ErrOpen},
	{KindWrite, ErrWrite},
	{KindPage, ErrPage},
	{KindTimeout, ErrTimeout},
	{KindCancelled, ErrCancelled},
	{KindInvalidConfig, ErrInvalidConfig},
}

// Sentinel returns the sentinel error for k, or nil for an unknown kind.
func (k Kind) Sentinel() error {
	for _, e := range kinds {
		if e.kind == k {
			return e.sentinel
		}
	}
	return nil
}

// TransformError is a failure scoped to one document. Page is 1-based and
// zero when the failure is not tied to a page.
type TransformError struct {
	Kind     Kind
	Document string
	Page     int
	Err      error
}

func (e *TransformError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Document)
	if e.Page > 0 {
		msg += fmt.Sprintf(" (page %d)", e.Page)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransformError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *TransformError) Is(target error) bool {
	s := e.Kind.Sentinel()
	return s != nil && s == target
}

// New builds a TransformError for a document.
func New(kind Kind, document string, cause error) *TransformError {
	return &TransformError{Kind: kind, Document: document, Err: cause}
}

// NewPage builds a TransformError tied to a 1-based page number.
func NewPage(kind Kind, document string, page int, cause error) *TransformError {
	return &TransformError{Kind: kind, Document: document, Page: page, Err: cause}
}

// KindOf extracts the Kind of err. Errors outside the taxonomy map to
// KindPage, the catch-all for codec failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *TransformError
	if errors.As(err, &te) {
		return te.Kind
	}
	for _, e := range kinds {
		if errors.Is(err, e.sentinel) {
			return e.kind
		}
	}
	return KindPage
}

// Config wraps a configuration failure so that it matches both the given
// sentinel and ErrInvalidConfig, and attaches a hint for the user.
func Config(sentinel error, hint string, format string, args ...any) error {
	err := errors.Mark(errors.Wrapf(sentinel, format, args...), ErrInvalidConfig)
	if hint != "" {
		err = errors.WithHint(err, hint)
	}
	return err
}
