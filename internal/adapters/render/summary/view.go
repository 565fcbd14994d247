package summary

import (
	"fmt"
	"math"
	"strings"

	"github.com/bnema/coplay/internal/application"
	"github.com/bnema/coplay/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

const defaultBarWidth = 20

type RenderOptions struct {
	// Previous counts, when known, add a change column.
	Previous domain.CoPlayCounts
	// Limit caps the number of count rows; zero shows all.
	Limit    int
	BarWidth int
}

func RenderCounts(tracked domain.AccountID, counts domain.CoPlayCounts, opts RenderOptions) (string, error) {
	return run(func(s styles) string {
		return lipgloss.JoinVertical(lipgloss.Left, countsBlock(tracked, counts, opts, s)...)
	})
}

func RenderSync(result application.SyncResult, opts RenderOptions) (string, error) {
	return run(func(s styles) string {
		lines := countsBlock(result.Tracked, result.Counts, opts, s)
		lines = append(lines, s.section.Render(renamesBlock(result, s)))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	})
}

func countsBlock(tracked domain.AccountID, counts domain.CoPlayCounts, opts RenderOptions, s styles) []string {
	entries := counts.Sorted()
	lines := []string{
		s.title.Render(fmt.Sprintf("Co-play counts for %s", tracked)),
		s.header.Render(fmt.Sprintf("window: %d days · accounts: %d", domain.HistoryWindowDays, len(entries))),
	}

	if len(entries) == 0 {
		return append(lines, s.empty.Render("No qualifying matches with other accounts."))
	}

	shown := entries
	if opts.Limit > 0 && len(shown) > opts.Limit {
		shown = shown[:opts.Limit]
	}

	width := opts.BarWidth
	if width <= 0 {
		width = defaultBarWidth
	}
	maxCount := entries[0].Count
	idWidth := 0
	for _, entry := range shown {
		idWidth = max(idWidth, len(entry.AccountID.String()))
	}

	rows := make([]string, 0, len(shown)+1)
	for _, entry := range shown {
		row := lipgloss.JoinHorizontal(
			lipgloss.Top,
			s.account.Render(fmt.Sprintf("%-*s", idWidth, entry.AccountID)),
			"  ",
			s.count.Render(fmt.Sprintf("%3d", entry.Count)),
			"  ",
			renderBar(entry.Count, maxCount, width, s),
		)
		if opts.Previous != nil {
			row += " " + renderDelta(entry.Count-opts.Previous.Count(entry.AccountID), s)
		}
		rows = append(rows, row)
	}
	if hidden := len(entries) - len(shown); hidden > 0 {
		rows = append(rows, s.empty.Render(fmt.Sprintf("… %d more", hidden)))
	}

	return append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}

func renamesBlock(result application.SyncResult, s styles) string {
	title := "Renames"
	if result.DryRun {
		title = "Planned renames (dry run)"
	}
	lines := []string{s.title.Render(fmt.Sprintf("%s: %d", title, len(result.Renames)))}

	if !result.NicknamesReady {
		lines = append(lines, s.warning.Render("Nicknames were not received; nothing was renamed."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	if len(result.Renames) == 0 {
		lines = append(lines, s.empty.Render(fmt.Sprintf("All %d nicknames are up to date.", len(result.Nicknames))))
	}
	for _, rename := range result.Renames {
		lines = append(lines, lipgloss.JoinHorizontal(
			lipgloss.Top,
			s.oldName.Render(rename.OldNickname),
			" -> ",
			s.newName.Render(rename.NewNickname),
			s.header.Render(fmt.Sprintf("  (%s)", rename.AccountID)),
		))
	}

	if !result.DryRun && !result.Settled {
		lines = append(lines, s.warning.Render("Some renames were not acknowledged before the session ended."))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderBar(count, maxCount, width int, s styles) string {
	filled := 0
	if maxCount > 0 {
		filled = int(math.Round(float64(width) * float64(count) / float64(maxCount)))
	}
	filled = min(max(filled, 0), width)

	return s.barFill.Render(strings.Repeat("█", filled)) + s.barEmpty.Render(strings.Repeat("·", width-filled))
}

func renderDelta(delta int, s styles) string {
	switch {
	case delta > 0:
		return s.up.Render(fmt.Sprintf("+%d", delta))
	case delta < 0:
		return s.down.Render(fmt.Sprintf("%d", delta))
	default:
		return s.empty.Render("=")
	}
}
