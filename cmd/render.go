package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/okian/scoutsync/internal/adapters/http/api"
	"github.com/okian/scoutsync/internal/app"
	"github.com/okian/scoutsync/internal/domain/reconcile"
	"github.com/okian/scoutsync/internal/domain/types"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	outcomeStyles = map[string]lipgloss.Style{
		app.OutcomeOK:      successStyle,
		app.OutcomePartial: warningStyle,
		app.OutcomeError:   errorStyle,
		app.OutcomeSkipped: subtleStyle,
	}
)

func collectStatus(ctx context.Context, e *engine) (types.Status, error) {
	return api.NewStatusHandler(e.orch, e.pending, e.client != nil).Snapshot(ctx)
}

func writeStatus(w io.Writer, format string, st types.Status) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(st)
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("SYNC STATUS") + "\n")
	b.WriteString(row("summary", st.Summary))
	b.WriteString(row("pending", fmt.Sprintf("%d", st.Pending)))
	switch {
	case !st.RemoteConfigured:
		b.WriteString(row("remote", subtleStyle.Render("not configured")))
	case st.Online:
		b.WriteString(row("remote", successStyle.Render("online")))
	default:
		b.WriteString(row("remote", warningStyle.Render("offline")))
	}
	if st.LastSuccess != "" {
		b.WriteString(row("last sync", st.LastSuccess))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeReport(w io.Writer, format string, rep app.RunReport) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(rep)
	}
	style, ok := outcomeStyles[rep.Outcome]
	if !ok {
		style = subtleStyle
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("SYNC "+strings.ToUpper(rep.Trigger)) + " " + style.Render(rep.Outcome) + "\n")
	if n := rep.Normalize; n != nil {
		b.WriteString(row("normalize", fmt.Sprintf("%d scanned, %d dropped, %d migrated, %d orphans removed",
			n.Scanned, n.Dropped, n.Migrated, n.OrphansRemoved)))
	}
	if rep.Push.Skipped {
		b.WriteString(row("push", subtleStyle.Render("skipped")))
	} else {
		b.WriteString(row("push", fmt.Sprintf("%d pushed in %d batches, %d failed batches, %d retries",
			rep.Push.Pushed, rep.Push.Batches, rep.Push.FailedBatches, rep.Push.Retries)))
	}
	if rep.Pull.Skipped {
		b.WriteString(row("pull", subtleStyle.Render("skipped")))
	} else {
		b.WriteString(row("roster", collection(rep.Pull.Roster)))
		b.WriteString(row("schedule", collection(rep.Pull.Schedule)))
	}
	if rep.CacheReset {
		b.WriteString(row("caches", "rebuilt"))
	}
	if rep.Error != "" {
		b.WriteString(row("error", errorStyle.Render(rep.Error)))
	}
	b.WriteString(row("took", rep.Duration.String()))
	_, err := io.WriteString(w, b.String())
	return err
}

func collection(res reconcile.CollectionResult) string {
	if res.Err != nil {
		return errorStyle.Render(res.Err.Error())
	}
	return fmt.Sprintf("%d merged, %d pushed upstream", res.Merged, res.Pushed)
}

func row(label, value string) string {
	return fmt.Sprintf("  %s %s\n", subtleStyle.Render(fmt.Sprintf("%-10s", label)), value)
}
