package timer

import (
	"context"
	"fmt"
	"time"

	"ttrack/internal/model"
)

// SessionStatus is the derived state of the engine: it is computed from
// "does an active entry exist?" and "does paused in-memory state exist?"
// every time a snapshot is built, never stored.
type SessionStatus int

const (
	Idle SessionStatus = iota
	Running
	Paused
)

func (s SessionStatus) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	default:
		return fmt.Sprintf("SessionStatus(%d)", int(s))
	}
}

// Snapshot is a point-in-time read model combining storage state and the
// in-memory session state.
type Snapshot struct {
	Status  SessionStatus
	Active  *ActiveSession // nil when Idle
	Date    model.Date
	Entries []HistoryEntry // completed entries for Date; running entry prepended
}

// ActiveSession describes the running or paused session.
type ActiveSession struct {
	EntryID            string
	CustomerID         string
	ProjectID          string
	CustomerName       string
	ProjectName        string
	StartLocal         time.Time
	StartUTC           time.Time
	LastInteractionUTC time.Time
	Accumulated        time.Duration
	Rounded            time.Duration
	Paused             bool
	Notes              string
	Billable           bool
	Tag                string
}

// HistoryEntry is one completed (or synthesized running) segment with its
// names resolved and durations computed.
type HistoryEntry struct {
	EntryID      string
	CustomerID   string
	CustomerName string
	ProjectID    string
	ProjectName  string
	StartLocal   time.Time
	EndLocal     time.Time
	Duration     time.Duration
	Rounded      time.Duration
	Billable     bool
	Notes        string
	Tag          string
}

// DailySummary aggregates one day for reporting. TotalRounded sums the
// per-project rounded totals, not the rounded grand total.
type DailySummary struct {
	Date         model.Date
	Total        time.Duration
	TotalRounded time.Duration
	Entries      []HistoryEntry
}

// History returns the completed entries for a day. The running entry, if
// any, is not included.
func (s *Service) History(ctx context.Context, date model.Date) ([]HistoryEntry, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	entries, err := s.entries.GetByLocalDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}

	cache := s.newLookups()
	results := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		he, ok, err := cache.historyEntry(ctx, entry)
		if err != nil {
			return nil, err
		}
		if ok {
			results = append(results, he)
		}
	}
	return results, nil
}

// LastCompleted returns the most recently started completed entry, or nil
// when the store is empty or the latest entry is still open.
func (s *Service) LastCompleted(ctx context.Context) (*HistoryEntry, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	entry, err := s.entries.GetMostRecent(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading most recent entry: %w", err)
	}
	if entry == nil {
		return nil, nil
	}

	he, ok, err := s.newLookups().historyEntry(ctx, entry)
	if err != nil || !ok {
		return nil, err
	}
	return &he, nil
}

// DailySummary builds per-day summaries over an inclusive date range.
func (s *Service) DailySummary(ctx context.Context, start, end model.Date) ([]DailySummary, error) {
	if start.After(end) {
		return nil, fmt.Errorf("end date %s precedes start date %s", end, start)
	}
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	active, err := s.entries.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up active entry: %w", err)
	}

	cache := s.newLookups()
	var summaries []DailySummary

	for date := start; !date.After(end); date = date.AddDays(1) {
		entries, err := s.entries.GetByLocalDate(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("loading entries for %s: %w", date, err)
		}

		history := make([]HistoryEntry, 0, len(entries)+1)
		var total time.Duration
		perProject := make(map[string]time.Duration)

		for _, entry := range entries {
			he, ok, err := cache.historyEntry(ctx, entry)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			history = append(history, he)
			total += he.Duration
			accumulateByProject(perProject, he.ProjectID, he.Duration)
		}

		if active != nil && model.DateOf(active.StartLocal) == date {
			he, err := cache.runningEntry(ctx, active, s.nowLocal())
			if err != nil {
				return nil, err
			}
			history = append([]HistoryEntry{he}, history...)
			total += he.Duration
			accumulateByProject(perProject, he.ProjectID, he.Duration)
		}

		if len(history) > 0 {
			var totalRounded time.Duration
			for _, d := range perProject {
				totalRounded += RoundBillable(d, true)
			}
			summaries = append(summaries, DailySummary{
				Date:         date,
				Total:        total,
				TotalRounded: totalRounded,
				Entries:      history,
			})
		}
	}
	return summaries, nil
}

// buildSnapshot assembles the read model while holding the gate.
// A zero date targets today.
func (s *Service) buildSnapshot(ctx context.Context, date model.Date) (*Snapshot, error) {
	if date.IsZero() {
		date = model.DateOf(s.nowLocal())
	}

	active, err := s.entries.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up active entry: %w", err)
	}
	entries, err := s.entries.GetByLocalDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}

	cache := s.newLookups()
	snap := &Snapshot{Status: Idle, Date: date}

	switch {
	case active != nil:
		project, customer, err := cache.resolve(ctx, active.ProjectID, active.CustomerID)
		if err != nil {
			return nil, err
		}

		var accumulated time.Duration
		if s.state != nil {
			accumulated = s.state.accumulated
		}
		total := accumulated + elapsed(active.StartLocal, s.nowLocal())

		snap.Status = Running
		snap.Active = &ActiveSession{
			EntryID:            active.ID,
			CustomerID:         active.CustomerID,
			ProjectID:          active.ProjectID,
			CustomerName:       customer.Name,
			ProjectName:        project.Name,
			StartLocal:         active.StartLocal,
			StartUTC:           active.StartUTC,
			LastInteractionUTC: active.LastModifiedUTC,
			Accumulated:        total,
			Rounded:            RoundBillable(total, false),
			Notes:              active.Notes,
			Billable:           active.Billable,
			Tag:                active.Tag,
		}

	case s.state != nil && s.state.paused:
		project, customer, err := cache.resolve(ctx, s.state.projectID, s.state.customerID)
		if err != nil {
			return nil, err
		}

		snap.Status = Paused
		snap.Active = &ActiveSession{
			EntryID:            s.state.lastEntryID,
			CustomerID:         s.state.customerID,
			ProjectID:          s.state.projectID,
			CustomerName:       customer.Name,
			ProjectName:        project.Name,
			StartLocal:         s.state.lastStartLocal,
			StartUTC:           s.state.lastStartUTC,
			LastInteractionUTC: s.state.lastInteractionUTC,
			Accumulated:        s.state.accumulated,
			Rounded:            s.state.rounded,
			Paused:             true,
			Notes:              s.state.notes,
			Billable:           s.state.billable,
			Tag:                s.state.tag,
		}
	}

	history := make([]HistoryEntry, 0, len(entries)+1)
	for _, entry := range entries {
		he, ok, err := cache.historyEntry(ctx, entry)
		if err != nil {
			return nil, err
		}
		if ok {
			history = append(history, he)
		}
	}

	if snap.Status == Running && active != nil {
		he, err := cache.runningEntry(ctx, active, s.nowLocal())
		if err != nil {
			return nil, err
		}
		history = append([]HistoryEntry{he}, history...)
	}

	snap.Entries = history
	return snap, nil
}

func accumulateByProject(totals map[string]time.Duration, projectID string, d time.Duration) {
	if d <= 0 {
		return
	}
	totals[projectID] += d
}

// lookups caches project/customer resolution for one snapshot build:
// one store round-trip per distinct id.
type lookups struct {
	svc       *Service
	projects  map[string]*model.Project
	customers map[string]*model.Customer
}

func (s *Service) newLookups() *lookups {
	return &lookups{
		svc:       s,
		projects:  make(map[string]*model.Project),
		customers: make(map[string]*model.Customer),
	}
}

func (l *lookups) project(ctx context.Context, id string) (*model.Project, error) {
	if p, ok := l.projects[id]; ok {
		return p, nil
	}
	p, err := l.svc.projects.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("looking up project: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("project %s not found", id)
	}
	l.projects[id] = p
	return p, nil
}

func (l *lookups) customer(ctx context.Context, id string) (*model.Customer, error) {
	if c, ok := l.customers[id]; ok {
		return c, nil
	}
	c, err := l.svc.customers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("looking up customer: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("customer %s not found", id)
	}
	l.customers[id] = c
	return c, nil
}

func (l *lookups) resolve(ctx context.Context, projectID, customerID string) (*model.Project, *model.Customer, error) {
	project, err := l.project(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	customer, err := l.customer(ctx, customerID)
	if err != nil {
		return nil, nil, err
	}
	return project, customer, nil
}

// historyEntry converts a completed entry; running or deleted entries are
// skipped (ok=false).
func (l *lookups) historyEntry(ctx context.Context, entry *model.TimeEntry) (HistoryEntry, bool, error) {
	if entry == nil || entry.EndLocal == nil || entry.Deleted {
		return HistoryEntry{}, false, nil
	}
	project, customer, err := l.resolve(ctx, entry.ProjectID, entry.CustomerID)
	if err != nil {
		return HistoryEntry{}, false, err
	}
	duration := elapsed(entry.StartLocal, *entry.EndLocal)
	return HistoryEntry{
		EntryID:      entry.ID,
		CustomerID:   entry.CustomerID,
		CustomerName: customer.Name,
		ProjectID:    entry.ProjectID,
		ProjectName:  project.Name,
		StartLocal:   entry.StartLocal,
		EndLocal:     *entry.EndLocal,
		Duration:     duration,
		Rounded:      RoundBillable(duration, true),
		Billable:     entry.Billable,
		Notes:        entry.Notes,
		Tag:          entry.Tag,
	}, true, nil
}

// runningEntry synthesizes a live history row for the open entry, using
// nowLocal as its provisional end.
func (l *lookups) runningEntry(ctx context.Context, active *model.TimeEntry, nowLocal time.Time) (HistoryEntry, error) {
	project, customer, err := l.resolve(ctx, active.ProjectID, active.CustomerID)
	if err != nil {
		return HistoryEntry{}, err
	}
	duration := elapsed(active.StartLocal, nowLocal)
	return HistoryEntry{
		EntryID:      active.ID,
		CustomerID:   active.CustomerID,
		CustomerName: customer.Name,
		ProjectID:    active.ProjectID,
		ProjectName:  project.Name,
		StartLocal:   active.StartLocal,
		EndLocal:     nowLocal,
		Duration:     duration,
		Rounded:      RoundBillable(duration, true),
		Billable:     active.Billable,
		Notes:        active.Notes,
		Tag:          active.Tag,
	}, nil
}
