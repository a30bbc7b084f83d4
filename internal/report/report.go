// Package report renders the summary of a voice patch run for the terminal.
package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/MrWong99/votpatch/internal/patcher"
)

// Header describes the run the summary belongs to.
type Header struct {
	Patch  string
	Seed   uint64
	DryRun bool
}

// Write renders s to w. Colours follow the capabilities of w, so output to a
// file or pipe is plain text. Write only reads s.
func Write(w io.Writer, h Header, s patcher.Summary) error {
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	muted := r.NewStyle().Foreground(lipgloss.Color("#888888"))
	border := r.NewStyle().Foreground(lipgloss.Color("#444444"))
	head := r.NewStyle().Bold(true).Padding(0, 1)
	cell := r.NewStyle().Padding(0, 1)

	mode := "written"
	if h.DryRun {
		mode = "dry run, not written"
	}
	meta := muted.Render(fmt.Sprintf("patch %s (%s), seed %d", h.Patch, mode, h.Seed))

	totals := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return head
			}
			return cell
		}).
		Headers("Scanned", "Ineligible", "Voiceless", "Dangling", "Kept", "Reassigned").
		Row(
			strconv.Itoa(s.Scanned),
			strconv.Itoa(s.Ineligible),
			strconv.Itoa(s.Voiceless),
			strconv.Itoa(s.Dangling),
			strconv.Itoa(s.Kept),
			strconv.Itoa(s.Reassigned),
		)

	perSource := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return head
			}
			return cell
		}).
		Headers("Source", "Candidates", "Kept", "Reassigned", "Targets")
	for _, src := range s.Sources {
		perSource.Row(
			src.Source,
			strconv.Itoa(src.Candidates),
			strconv.Itoa(src.Kept),
			strconv.Itoa(src.Reassigned),
			formatTargets(src.Targets),
		)
	}

	out := lipgloss.JoinVertical(lipgloss.Left,
		title.Render("Voice patch summary"),
		meta,
		totals.Render(),
		perSource.Render(),
	)
	_, err := fmt.Fprintln(w, out)
	return err
}

// Line returns the one-line form of s used in logs and plain output.
func Line(s patcher.Summary) string {
	return fmt.Sprintf("kept=%d reassigned=%d", s.Kept, s.Reassigned)
}

// formatTargets lists per-target counts, most used first.
func formatTargets(targets map[string]int) string {
	if len(targets) == 0 {
		return "-"
	}
	ids := make([]string, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if targets[a] != targets[b] {
			return targets[b] - targets[a]
		}
		return strings.Compare(a, b)
	})
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s×%d", id, targets[id])
	}
	return strings.Join(parts, ", ")
}
