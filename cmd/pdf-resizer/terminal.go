package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/Lllllllleong/pageresizer/internal/models"
	"github.com/Lllllllleong/pageresizer/internal/resizeerr"
)

// terminal draws a progress bar advanced once per finished document.
type terminal struct {
	enabled bool
	bar     *pterm.ProgressbarPrinter
}

func newTerminal(enabled bool) *terminal {
	return &terminal{enabled: enabled}
}

func (t *terminal) Started(mode string, total int) {
	if !t.enabled || total == 0 {
		return
	}
	bar, err := pterm.DefaultProgressbar.WithTotal(total).WithTitle("Resizing (" + mode + ")").Start()
	if err != nil {
		return
	}
	t.bar = bar
}

func (t *terminal) DocumentDone(res models.DocumentResult, _, _ int) {
	if t.bar == nil {
		return
	}
	t.bar.UpdateTitle(res.Document.Name)
	t.bar.Increment()
}

func (t *terminal) Finished(*models.RunReport) {
	if t.bar != nil {
		_, _ = t.bar.Stop()
		t.bar = nil
	}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(time.DateTime)
}

func printDocuments(refs []models.DocumentRef) error {
	if len(refs) == 0 {
		pterm.Warning.Println("No documents found")
		return nil
	}
	data := pterm.TableData{{"#", "Name", "Path", "Created", "Modified"}}
	for i, r := range refs {
		data = append(data, []string{fmt.Sprint(i + 1), r.Name, r.Path, formatTime(r.CreatedAt), formatTime(r.ModifiedAt)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printUnavailable(unavailable []models.UnavailableDocument) {
	for _, u := range unavailable {
		pterm.Warning.Printf("Unavailable: %s (%v)\n", u.Path, u.Err)
	}
}

func printTimings(report *models.RunReport) error {
	if len(report.Results) == 0 {
		return nil
	}
	pterm.DefaultSection.Println("Timings")
	data := pterm.TableData{{"Document", "Pages", "Duration", "Status"}}
	for _, res := range report.Results {
		status := "ok"
		if !res.OK() {
			status = string(resizeerr.KindOf(res.Err))
		}
		data = append(data, []string{res.Document.Name, fmt.Sprint(res.Pages), res.Duration.Round(time.Millisecond).String(), status})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printSummary(report *models.RunReport) error {
	printUnavailable(report.Unavailable)

	if failures := report.Failures(); len(failures) > 0 {
		pterm.DefaultSection.Println("Failures")
		data := pterm.TableData{{"Document", "Kind", "Error"}}
		for _, res := range failures {
			data = append(data, []string{res.Document.Name, string(resizeerr.KindOf(res.Err)), res.Err.Error()})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
	}

	elapsed := report.TotalDuration.Round(time.Millisecond)
	switch {
	case report.Total == 0:
		pterm.Warning.Println("No documents to resize")
	case report.Failed > 0:
		pterm.Warning.Printf("Resized %d of %d documents in %s (%d failed, %d skipped)\n",
			report.Succeeded, report.Total, elapsed, report.Failed, report.Skipped)
	case report.Skipped > 0:
		pterm.Warning.Printf("Resized %d of %d documents in %s (%d skipped after cancellation)\n",
			report.Succeeded, report.Total, elapsed, report.Skipped)
	default:
		pterm.Success.Printf("Resized %d documents in %s\n", report.Succeeded, elapsed)
	}
	return nil
}
