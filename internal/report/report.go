// Package report renders daily summaries as CSV for invoicing.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"ttrack/internal/model"
	"ttrack/internal/timer"
)

// Preset selects a trailing date range ending today.
type Preset string

const (
	PresetWeek  Preset = "week"  // last 7 days
	PresetMonth Preset = "month" // last 30 days
)

// Exporter builds CSV time reports from a timer service.
type Exporter struct {
	svc   *timer.Service
	clock timer.Clock
	loc   *time.Location
}

// NewExporter creates an Exporter. clock and loc may be nil for the real
// clock and the system zone.
func NewExporter(svc *timer.Service, clock timer.Clock, loc *time.Location) *Exporter {
	if clock == nil {
		clock = timer.RealClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{svc: svc, clock: clock, loc: loc}
}

// WritePreset writes the CSV report for a preset range ending today.
func (e *Exporter) WritePreset(ctx context.Context, w io.Writer, preset Preset) error {
	today := model.DateOf(e.clock.Now().In(e.loc))
	var start model.Date
	switch preset {
	case PresetWeek:
		start = today.AddDays(-6)
	case PresetMonth:
		start = today.AddDays(-29)
	default:
		return fmt.Errorf("unknown report preset: %s", preset)
	}
	return e.WriteRange(ctx, w, start, today)
}

// WriteRange writes the CSV report for an inclusive date range.
func (e *Exporter) WriteRange(ctx context.Context, w io.Writer, start, end model.Date) error {
	if start.After(end) {
		return fmt.Errorf("end date must be on or after the start date")
	}
	summaries, err := e.svc.DailySummary(ctx, start, end)
	if err != nil {
		return fmt.Errorf("building daily summaries: %w", err)
	}
	return WriteCSV(w, summaries)
}

// WriteCSV renders summaries as CSV: one row per day+project group, with
// the group's segments concatenated into the notes column.
func WriteCSV(w io.Writer, summaries []timer.DailySummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"day", "customer", "project", "totalHours", "notes"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	ordered := make([]timer.DailySummary, len(summaries))
	copy(ordered, summaries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[j].Date.After(ordered[i].Date)
	})

	for _, summary := range ordered {
		for _, group := range groupEntries(summary.Entries) {
			row := []string{
				summary.Date.String(),
				group.customerName,
				group.projectName,
				formatHours(group.total),
				buildNotes(group.entries),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing csv row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

type entryGroup struct {
	customerName string
	projectName  string
	total        time.Duration
	entries      []timer.HistoryEntry
}

// groupEntries buckets a day's entries by customer+project and orders the
// groups by customer then project name, case-insensitively.
func groupEntries(entries []timer.HistoryEntry) []*entryGroup {
	index := make(map[string]*entryGroup)
	var groups []*entryGroup

	for _, entry := range entries {
		key := entry.CustomerID + "\x00" + entry.ProjectID
		group, ok := index[key]
		if !ok {
			customer := entry.CustomerName
			if strings.TrimSpace(customer) == "" {
				customer = "Unassigned"
			}
			project := entry.ProjectName
			if project == "" {
				project = "Untitled Project"
			}
			group = &entryGroup{customerName: customer, projectName: project}
			index[key] = group
			groups = append(groups, group)
		}
		group.total += entry.Duration
		group.entries = append(group.entries, entry)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		ci, cj := strings.ToLower(groups[i].customerName), strings.ToLower(groups[j].customerName)
		if ci != cj {
			return ci < cj
		}
		return strings.ToLower(groups[i].projectName) < strings.ToLower(groups[j].projectName)
	})
	return groups
}

// buildNotes joins a group's segments into one newline-separated field,
// ordered by start time.
func buildNotes(entries []timer.HistoryEntry) string {
	ordered := make([]timer.HistoryEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartLocal.Before(ordered[j].StartLocal)
	})

	lines := make([]string, 0, len(ordered))
	for _, entry := range ordered {
		note := strings.TrimSpace(entry.Notes)
		if note == "" {
			note = "(no note)"
		}
		lines = append(lines, fmt.Sprintf("%s - %s: %s",
			entry.StartLocal.Format("15:04"), entry.EndLocal.Format("15:04"), note))
	}
	return strings.Join(lines, "\n")
}

// formatHours renders a duration as decimal hours with up to two decimal
// places and no trailing zeros.
func formatHours(d time.Duration) string {
	s := strconv.FormatFloat(d.Hours(), 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-0" {
		s = "0"
	}
	return s
}
