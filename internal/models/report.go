package models

import (
	"time"

	"github.com/google/uuid"
)

// Run modes.
const (
	ModeSingleFile = "single-file"
	ModeDirectory  = "directory"
	ModeManifest   = "manifest"
	ModeReport     = "report"
)

// DocumentResult is the outcome of transforming one document. Err is nil on
// success and a *resizeerr.TransformError otherwise. Skipped marks documents
// abandoned because the run was cancelled before a worker claimed them.
type DocumentResult struct {
	Document   DocumentRef
	OutputPath string
	Pages      int
	Scaled     int
	Unchanged  int
	Duration   time.Duration
	Skipped    bool
	Err        error
}

// OK reports whether the document was written.
func (r DocumentResult) OK() bool { return r.Err == nil && !r.Skipped }

// UnavailableDocument is a manifest entry that could not be resolved.
type UnavailableDocument struct {
	Path string
	Err  error
}

// RunReport aggregates one pipeline invocation. It lives in memory only.
type RunReport struct {
	RunID         string
	Mode          string
	Total         int
	Succeeded     int
	Failed        int
	Skipped       int
	Results       []DocumentResult
	Unavailable   []UnavailableDocument
	StartedAt     time.Time
	TotalDuration time.Duration
}

// NewRunReport starts a report for mode.
func NewRunReport(mode string) *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now(),
	}
}

// Record adds one document outcome.
func (r *RunReport) Record(res DocumentResult) {
	r.Results = append(r.Results, res)
	switch {
	case res.Skipped:
		r.Skipped++
	case res.Err == nil:
		r.Succeeded++
	default:
		r.Failed++
	}
}

// Processed is the number of documents a worker actually ran on.
func (r *RunReport) Processed() int {
	return r.Succeeded + r.Failed
}

// Failures returns the failed results. Skipped documents are not failures.
func (r *RunReport) Failures() []DocumentResult {
	var out []DocumentResult
	for _, res := range r.Results {
		if res.Err != nil && !res.Skipped {
			out = append(out, res)
		}
	}
	return out
}

// Finish stamps the total duration.
func (r *RunReport) Finish() {
	r.TotalDuration = time.Since(r.StartedAt)
}
