package timer

import (
	"context"
	"fmt"
	"time"

	"ttrack/internal/model"
)

// Status classifies the outcome of a session command.
type Status int

const (
	StatusSuccess Status = iota
	StatusValidationFailed
	StatusConflict
	StatusNotFound
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusValidationFailed:
		return "ValidationFailed"
	case StatusConflict:
		return "Conflict"
	case StatusNotFound:
		return "NotFound"
	case StatusFailure:
		return "Failure"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// CommandResult is what every mutating session command returns.
// Status failures (validation, conflicts, missing records) travel here;
// infrastructure errors travel in the accompanying error value.
type CommandResult struct {
	Status   Status
	Snapshot *Snapshot
	Message  string
}

// StartOptions configures Start.
type StartOptions struct {
	ProjectID  string
	CustomerID string // optional; must match the project's customer if set
	Notes      string
	Billable   bool
	Tag        string
	// StartOverride replaces "now" as the entry's start when non-nil.
	StartOverride *time.Time
	// ForceRestart stops a running entry at the new start time instead of
	// returning a conflict.
	ForceRestart bool
}

// StopOptions configures Stop. Non-nil fields overwrite the entry's
// notes/billable/tag as it is closed.
type StopOptions struct {
	Notes        *string
	Billable     *bool
	Tag          *string
	StopOverride *time.Time
}

// AdjustOptions configures AdjustEntry. Nil fields are left unchanged.
type AdjustOptions struct {
	EntryID    string
	StartLocal *time.Time
	EndLocal   *time.Time
	Notes      *string
}

// Service is the session state machine and duration-accounting engine.
// All methods serialize through a single gate: one logical operation
// completes before the next begins, so a snapshot taken right after a
// command reflects exactly that command's effect.
type Service struct {
	entries   EntryStore
	projects  ProjectStore
	customers CustomerStore
	clock     Clock
	loc       *time.Location
	logger    Logger

	gate gate

	// In-memory pause/resume chain. Replaced wholesale on every
	// transition, only touched while holding the gate.
	state *sessionState
}

// NewService creates the session engine. The three stores are required;
// clock, loc and logger fall back to the real clock, the host zone and a
// no-op logger.
func NewService(entries EntryStore, projects ProjectStore, customers CustomerStore, clock Clock, loc *time.Location, logger Logger) *Service {
	if entries == nil || projects == nil || customers == nil {
		panic("timer: NewService requires entry, project and customer stores")
	}
	if clock == nil {
		clock = RealClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Service{
		entries:   entries,
		projects:  projects,
		customers: customers,
		clock:     clock,
		loc:       loc,
		logger:    logger,
		gate:      newGate(),
	}
}

// Snapshot returns the current read model for the given day.
// A zero date means "today".
func (s *Service) Snapshot(ctx context.Context, date model.Date) (*Snapshot, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()
	return s.buildSnapshot(ctx, date)
}

// Start opens a new entry for a project and begins a fresh session.
func (s *Service) Start(ctx context.Context, opts StartOptions) (*CommandResult, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	if opts.ProjectID == "" {
		return s.failure(ctx, StatusValidationFailed, "Project is required.", model.Date{})
	}

	project, err := s.projects.GetByID(ctx, opts.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("looking up project: %w", err)
	}
	if project == nil {
		return s.failure(ctx, StatusNotFound, "Project not found.", model.Date{})
	}
	if !project.Active {
		return s.failure(ctx, StatusValidationFailed, "Project is archived.", model.Date{})
	}

	customerID := opts.CustomerID
	if customerID == "" {
		customerID = project.CustomerID
	}
	if customerID == "" {
		return s.failure(ctx, StatusValidationFailed, "Customer is required.", model.Date{})
	}
	if opts.CustomerID != "" && opts.CustomerID != project.CustomerID {
		return s.failure(ctx, StatusValidationFailed, "Project does not belong to the specified customer.", model.Date{})
	}

	active, err := s.entries.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up active entry: %w", err)
	}

	startLocal := s.nowLocal()
	if opts.StartOverride != nil {
		startLocal = s.localize(*opts.StartOverride)
	}

	if active != nil {
		if !opts.ForceRestart {
			return s.failure(ctx, StatusConflict, "A session is already running. Use ForceRestart to override.", model.Date{})
		}
		if _, err := s.stopEntry(ctx, active, startLocal, false, nil); err != nil {
			return nil, err
		}
	}

	created, err := s.entries.Create(ctx, EntryCreate{
		CustomerID: customerID,
		ProjectID:  project.ID,
		StartLocal: startLocal,
		StartUTC:   startLocal.UTC(),
		Notes:      opts.Notes,
		Billable:   opts.Billable,
		Tag:        opts.Tag,
	})
	if err != nil {
		return nil, fmt.Errorf("creating entry: %w", err)
	}

	s.state = freshSessionState(created)
	s.logger.Info("session started", "entry", created.ID, "project", project.Name)

	snap, err := s.buildSnapshot(ctx, model.Date{})
	if err != nil {
		return nil, err
	}
	return &CommandResult{StatusSuccess, snap, fmt.Sprintf("Timer started for %s.", project.Name)}, nil
}

// Pause closes the running entry and keeps its duration in the in-memory
// session so Resume can continue the same logical session.
func (s *Service) Pause(ctx context.Context) (*CommandResult, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	active, err := s.entries.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up active entry: %w", err)
	}
	if active == nil {
		return s.failure(ctx, StatusNotFound, "No active session to pause.", model.Date{})
	}

	if _, err := s.stopEntry(ctx, active, s.nowLocal(), true, nil); err != nil {
		return nil, err
	}
	s.logger.Info("session paused", "entry", active.ID)

	snap, err := s.buildSnapshot(ctx, model.Date{})
	if err != nil {
		return nil, err
	}
	return &CommandResult{StatusSuccess, snap, "Timer paused."}, nil
}

// Resume opens a new entry continuing the paused session.
func (s *Service) Resume(ctx context.Context) (*CommandResult, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	active, err := s.entries.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up active entry: %w", err)
	}
	if active != nil {
		return s.failure(ctx, StatusConflict, "A session is already running.", model.Date{})
	}

	if s.state == nil || !s.state.paused {
		return s.failure(ctx, StatusNotFound, "No paused session to resume.", model.Date{})
	}

	project, err := s.projects.GetByID(ctx, s.state.projectID)
	if err != nil {
		return nil, fmt.Errorf("looking up project: %w", err)
	}
	if project == nil {
		// The chain is unrecoverable without its project.
		s.state = nil
		return s.failure(ctx, StatusNotFound, "Project no longer exists.", model.Date{})
	}

	// Never let a new segment begin before the prior one ended (the wall
	// clock may have moved backwards between pause and resume).
	startLocal := s.nowLocal()
	if s.state.lastEndLocal != nil && startLocal.Before(*s.state.lastEndLocal) {
		startLocal = *s.state.lastEndLocal
	}

	created, err := s.entries.Create(ctx, EntryCreate{
		CustomerID: s.state.customerID,
		ProjectID:  project.ID,
		StartLocal: startLocal,
		StartUTC:   startLocal.UTC(),
		Notes:      s.state.notes,
		Billable:   s.state.billable,
		Tag:        s.state.tag,
	})
	if err != nil {
		return nil, fmt.Errorf("creating entry: %w", err)
	}

	s.state = s.state.withResumedEntry(created)
	s.logger.Info("session resumed", "entry", created.ID, "project", project.Name)

	snap, err := s.buildSnapshot(ctx, model.Date{})
	if err != nil {
		return nil, err
	}
	return &CommandResult{StatusSuccess, snap, fmt.Sprintf("Timer resumed for %s.", project.Name)}, nil
}

// Stop closes the running entry and ends the logical session.
func (s *Service) Stop(ctx context.Context, opts StopOptions) (*CommandResult, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	active, err := s.entries.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up active entry: %w", err)
	}
	if active == nil {
		return s.failure(ctx, StatusNotFound, "No active session to stop.", model.Date{})
	}

	stopLocal := s.nowLocal()
	if opts.StopOverride != nil {
		stopLocal = s.localize(*opts.StopOverride)
	}
	if _, err := s.stopEntry(ctx, active, stopLocal, false, &opts); err != nil {
		return nil, err
	}

	s.state = nil
	s.logger.Info("session stopped", "entry", active.ID)

	snap, err := s.buildSnapshot(ctx, model.Date{})
	if err != nil {
		return nil, err
	}
	return &CommandResult{StatusSuccess, snap, "Timer stopped."}, nil
}

// Cancel deletes the running entry outright; it never appears in history.
func (s *Service) Cancel(ctx context.Context) (*CommandResult, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	active, err := s.entries.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up active entry: %w", err)
	}
	if active == nil {
		return s.failure(ctx, StatusNotFound, "No active session to cancel.", model.Date{})
	}

	deleted, err := s.entries.Delete(ctx, active.ID)
	// The session is abandoned even when the delete fails, so a stuck
	// row never wedges the timer.
	s.state = nil
	if err != nil {
		return nil, fmt.Errorf("deleting entry: %w", err)
	}
	if !deleted {
		return s.failure(ctx, StatusFailure, "Failed to cancel the active session.", model.Date{})
	}
	s.logger.Info("session cancelled", "entry", active.ID)

	snap, err := s.buildSnapshot(ctx, model.Date{})
	if err != nil {
		return nil, err
	}
	return &CommandResult{StatusSuccess, snap, "Active session cancelled."}, nil
}

// UpdateNotes replaces the notes of the running or paused session.
func (s *Service) UpdateNotes(ctx context.Context, notes string) (*CommandResult, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	active, err := s.entries.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up active entry: %w", err)
	}

	if active != nil {
		updated, err := s.entries.Update(ctx, EntryUpdate{ID: active.ID, Notes: &notes})
		if err != nil {
			return nil, fmt.Errorf("updating notes: %w", err)
		}
		if updated == nil {
			return s.failure(ctx, StatusFailure, "Failed to update notes for the active session.", model.Date{})
		}
		if s.state != nil {
			s.state = s.state.withNotes(notes, updated.LastModifiedUTC)
		}
		snap, err := s.buildSnapshot(ctx, model.Date{})
		if err != nil {
			return nil, err
		}
		return &CommandResult{StatusSuccess, snap, "Notes updated for the active session."}, nil
	}

	if s.state != nil && s.state.paused {
		if s.state.lastEntryID != "" {
			updated, err := s.entries.Update(ctx, EntryUpdate{ID: s.state.lastEntryID, Notes: &notes})
			if err != nil {
				return nil, fmt.Errorf("updating notes: %w", err)
			}
			if updated == nil {
				return s.failure(ctx, StatusFailure, "Failed to update notes for the paused session.", model.Date{})
			}
			s.state = s.state.withNotes(notes, updated.LastModifiedUTC)
		} else {
			s.state = s.state.withNotes(notes, time.Time{})
		}
		snap, err := s.buildSnapshot(ctx, model.Date{})
		if err != nil {
			return nil, err
		}
		return &CommandResult{StatusSuccess, snap, "Notes updated for the paused session."}, nil
	}

	return s.failure(ctx, StatusNotFound, "No active or paused session to update notes for.", model.Date{})
}

// AdjustEntry edits the start/end/notes of a completed entry.
func (s *Service) AdjustEntry(ctx context.Context, opts AdjustOptions) (*CommandResult, error) {
	if opts.EntryID == "" {
		return nil, fmt.Errorf("entry id is required")
	}
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	entry, err := s.entries.GetByID(ctx, opts.EntryID)
	if err != nil {
		return nil, fmt.Errorf("looking up entry: %w", err)
	}
	if entry == nil || entry.Deleted {
		return s.failure(ctx, StatusNotFound, "Time entry not found.", model.Date{})
	}
	if entry.EndLocal == nil {
		return s.failure(ctx, StatusValidationFailed, "Stop the active session before editing it.", model.DateOf(entry.StartLocal))
	}

	targetStart := entry.StartLocal
	if opts.StartLocal != nil {
		targetStart = s.localize(*opts.StartLocal)
	}
	targetEnd := *entry.EndLocal
	if opts.EndLocal != nil {
		targetEnd = s.localize(*opts.EndLocal)
	}

	if !targetEnd.After(targetStart) {
		return s.failure(ctx, StatusValidationFailed, "End time must be later than the start time.", model.DateOf(targetStart))
	}

	startChanged := opts.StartLocal != nil && !targetStart.Equal(entry.StartLocal)
	endChanged := opts.EndLocal != nil && !targetEnd.Equal(*entry.EndLocal)
	notesChanged := opts.Notes != nil

	if !startChanged && !endChanged && !notesChanged {
		return s.failure(ctx, StatusValidationFailed, "No changes detected.", model.DateOf(targetStart))
	}

	patch := EntryUpdate{ID: entry.ID, Notes: opts.Notes}
	if startChanged {
		startUTC := targetStart.UTC()
		patch.StartLocal = &targetStart
		patch.StartUTC = &startUTC
	}
	if endChanged {
		endUTC := targetEnd.UTC()
		patch.EndLocal = &targetEnd
		patch.EndUTC = &endUTC
	}

	updated, err := s.entries.Update(ctx, patch)
	if err != nil {
		return nil, fmt.Errorf("updating entry: %w", err)
	}
	if updated == nil {
		return s.failure(ctx, StatusFailure, "Failed to update the selected time entry.", model.DateOf(targetStart))
	}
	s.logger.Info("entry adjusted", "entry", entry.ID)

	snap, err := s.buildSnapshot(ctx, model.DateOf(updated.StartLocal))
	if err != nil {
		return nil, err
	}
	return &CommandResult{StatusSuccess, snap, "Time entry updated."}, nil
}

// DeleteEntry removes a completed entry.
func (s *Service) DeleteEntry(ctx context.Context, entryID string) (*CommandResult, error) {
	if entryID == "" {
		return nil, fmt.Errorf("entry id is required")
	}
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("looking up entry: %w", err)
	}
	if entry == nil || entry.Deleted {
		return s.failure(ctx, StatusNotFound, "Time entry not found.", model.Date{})
	}
	if entry.EndLocal == nil {
		return s.failure(ctx, StatusValidationFailed, "Stop the active session before deleting it.", model.DateOf(entry.StartLocal))
	}

	snapshotDate := model.DateOf(entry.StartLocal)
	deleted, err := s.entries.Delete(ctx, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("deleting entry: %w", err)
	}
	if !deleted {
		return s.failure(ctx, StatusFailure, "Failed to delete the selected time entry.", snapshotDate)
	}

	// Deleting the chain tail orphans the paused session.
	if s.state != nil && s.state.lastEntryID == entry.ID {
		s.state = nil
	}
	s.logger.Info("entry deleted", "entry", entry.ID)

	snap, err := s.buildSnapshot(ctx, snapshotDate)
	if err != nil {
		return nil, err
	}
	return &CommandResult{StatusSuccess, snap, "Time entry deleted."}, nil
}

// stopEntry closes an entry at stopLocal, clamped to never precede the
// entry's own start. When isPause is set, the closed segment is folded into
// the in-memory session state.
func (s *Service) stopEntry(ctx context.Context, entry *model.TimeEntry, stopLocal time.Time, isPause bool, opts *StopOptions) (*model.TimeEntry, error) {
	stopLocal = s.localize(stopLocal)
	startLocal := s.localize(entry.StartLocal)
	if stopLocal.Before(startLocal) {
		stopLocal = startLocal
	}
	stopUTC := stopLocal.UTC()

	patch := EntryUpdate{ID: entry.ID, EndLocal: &stopLocal, EndUTC: &stopUTC}
	if opts != nil {
		patch.Notes = opts.Notes
		patch.Billable = opts.Billable
		patch.Tag = opts.Tag
	}

	updated, err := s.entries.Update(ctx, patch)
	if err != nil {
		return nil, fmt.Errorf("closing entry: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("active entry %s vanished during stop", entry.ID)
	}

	if isPause {
		segment := elapsed(entry.StartLocal, stopLocal)
		s.state = s.state.withPausedSegment(updated, segment, stopLocal, stopUTC)
	}
	return updated, nil
}

// failure builds a result carrying a non-success status over a fresh
// snapshot, so callers always see the state the command left behind.
func (s *Service) failure(ctx context.Context, status Status, message string, date model.Date) (*CommandResult, error) {
	snap, err := s.buildSnapshot(ctx, date)
	if err != nil {
		return nil, err
	}
	return &CommandResult{Status: status, Snapshot: snap, Message: message}, nil
}

func (s *Service) nowLocal() time.Time { return s.clock.Now().In(s.loc) }

func (s *Service) localize(t time.Time) time.Time { return t.In(s.loc) }

// elapsed is the duration between start and a candidate stop, clamped at
// zero so clock skew and misordered overrides never produce negatives.
func elapsed(start, stop time.Time) time.Duration {
	d := stop.Sub(start)
	if d <= 0 {
		return 0
	}
	return d
}
