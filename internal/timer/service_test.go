package timer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ttrack/internal/model"
	"ttrack/internal/store"
	"ttrack/internal/testutil"
	"ttrack/internal/timer"
)

type fixture struct {
	svc      *timer.Service
	clock    *testutil.StubClock
	store    *store.SQLiteStore
	customer *model.Customer
	project  *model.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.FixedClock()
	st := testutil.NewTestStore(t, clock, testutil.NewStubIDGenerator())

	ctx := context.Background()
	customer, err := st.Customers().Create(ctx, "Acme")
	if err != nil {
		t.Fatalf("creating customer: %v", err)
	}
	project, err := st.Projects().Create(ctx, customer.ID, "Website", true)
	if err != nil {
		t.Fatalf("creating project: %v", err)
	}

	svc := timer.NewService(st, st.Projects(), st.Customers(), clock, time.UTC, nil)
	return &fixture{svc: svc, clock: clock, store: st, customer: customer, project: project}
}

func mustStart(t *testing.T, f *fixture, opts timer.StartOptions) *timer.CommandResult {
	t.Helper()
	if opts.ProjectID == "" {
		opts.ProjectID = f.project.ID
	}
	result, err := f.svc.Start(context.Background(), opts)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if result.Status != timer.StatusSuccess {
		t.Fatalf("Start() status = %v (%s)", result.Status, result.Message)
	}
	return result
}

func TestService_Start(t *testing.T) {
	t.Run("starts a timer", func(t *testing.T) {
		f := newFixture(t)
		result := mustStart(t, f, timer.StartOptions{Notes: "homepage", Billable: true})

		if result.Message != "Timer started for Website." {
			t.Errorf("message = %q", result.Message)
		}
		snap := result.Snapshot
		if snap.Status != timer.Running {
			t.Fatalf("status = %v, want Running", snap.Status)
		}
		if snap.Active == nil {
			t.Fatal("no active session in snapshot")
		}
		if snap.Active.ProjectName != "Website" || snap.Active.CustomerName != "Acme" {
			t.Errorf("active names = %q/%q", snap.Active.CustomerName, snap.Active.ProjectName)
		}
		if snap.Active.Notes != "homepage" || !snap.Active.Billable {
			t.Errorf("active notes/billable = %q/%v", snap.Active.Notes, snap.Active.Billable)
		}
		if len(snap.Entries) != 1 {
			t.Fatalf("entries = %d, want the synthesized running row", len(snap.Entries))
		}
		if snap.Entries[0].EntryID != snap.Active.EntryID {
			t.Error("running row does not match the active entry")
		}
	})

	t.Run("requires a project", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.svc.Start(context.Background(), timer.StartOptions{})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if result.Status != timer.StatusValidationFailed || result.Message != "Project is required." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("unknown project", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.svc.Start(context.Background(), timer.StartOptions{ProjectID: "nope"})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if result.Status != timer.StatusNotFound || result.Message != "Project not found." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("archived project", func(t *testing.T) {
		f := newFixture(t)
		f.project.Active = false
		if _, err := f.store.Projects().Update(context.Background(), f.project); err != nil {
			t.Fatalf("archiving project: %v", err)
		}

		result, err := f.svc.Start(context.Background(), timer.StartOptions{ProjectID: f.project.ID})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if result.Status != timer.StatusValidationFailed || result.Message != "Project is archived." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("customer mismatch", func(t *testing.T) {
		f := newFixture(t)
		other, err := f.store.Customers().Create(context.Background(), "Globex")
		if err != nil {
			t.Fatalf("creating customer: %v", err)
		}

		result, err := f.svc.Start(context.Background(), timer.StartOptions{
			ProjectID:  f.project.ID,
			CustomerID: other.ID,
		})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if result.Status != timer.StatusValidationFailed {
			t.Errorf("status = %v, want ValidationFailed", result.Status)
		}
	})

	t.Run("conflict when already running", func(t *testing.T) {
		f := newFixture(t)
		first := mustStart(t, f, timer.StartOptions{Billable: true})

		result, err := f.svc.Start(context.Background(), timer.StartOptions{ProjectID: f.project.ID})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if result.Status != timer.StatusConflict {
			t.Errorf("status = %v, want Conflict", result.Status)
		}
		if result.Message != "A session is already running. Use ForceRestart to override." {
			t.Errorf("message = %q", result.Message)
		}
		// Snapshot still shows the original session untouched.
		if result.Snapshot.Status != timer.Running {
			t.Errorf("snapshot status = %v, want Running", result.Snapshot.Status)
		}
		if result.Snapshot.Active.EntryID != first.Snapshot.Active.EntryID {
			t.Error("active entry changed on a rejected start")
		}
	})

	t.Run("force restart stops the prior entry at the new start", func(t *testing.T) {
		f := newFixture(t)
		first := mustStart(t, f, timer.StartOptions{Billable: true})
		f.clock.Advance(40 * time.Minute)

		result := mustStart(t, f, timer.StartOptions{Billable: true, ForceRestart: true})

		if result.Snapshot.Active.EntryID == first.Snapshot.Active.EntryID {
			t.Fatal("force restart reused the old entry")
		}
		// One completed segment plus the new running one.
		if len(result.Snapshot.Entries) != 2 {
			t.Fatalf("entries = %d, want 2", len(result.Snapshot.Entries))
		}
		old, err := f.store.GetByID(context.Background(), first.Snapshot.Active.EntryID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if old.EndLocal == nil {
			t.Fatal("prior entry was not stopped")
		}
		if got := old.EndLocal.Sub(old.StartLocal); got != 40*time.Minute {
			t.Errorf("prior entry duration = %v, want 40m", got)
		}
	})

	t.Run("start override sets the entry start", func(t *testing.T) {
		f := newFixture(t)
		at := f.clock.Now().Add(-25 * time.Minute)
		result := mustStart(t, f, timer.StartOptions{Billable: true, StartOverride: &at})

		if !result.Snapshot.Active.StartLocal.Equal(at) {
			t.Errorf("start = %v, want %v", result.Snapshot.Active.StartLocal, at)
		}
		if result.Snapshot.Active.Accumulated != 25*time.Minute {
			t.Errorf("accumulated = %v, want 25m", result.Snapshot.Active.Accumulated)
		}
	})

	t.Run("failed create after force restart leaves no active entry", func(t *testing.T) {
		f := newFixture(t)
		failing := &testutil.FailingEntryStore{EntryStore: f.store}
		svc := timer.NewService(failing, f.store.Projects(), f.store.Customers(), f.clock, time.UTC, nil)

		if _, err := svc.Start(context.Background(), timer.StartOptions{ProjectID: f.project.ID, Billable: true}); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		f.clock.Advance(10 * time.Minute)

		failing.CreateErr = errors.New("disk full")
		_, err := svc.Start(context.Background(), timer.StartOptions{
			ProjectID: f.project.ID, Billable: true, ForceRestart: true,
		})
		if err == nil {
			t.Fatal("Start() succeeded despite failing create")
		}

		active, err := f.store.GetActive(context.Background())
		if err != nil {
			t.Fatalf("GetActive() error = %v", err)
		}
		if active != nil {
			t.Errorf("active entry %s remains after failed restart", active.ID)
		}
	})
}

func TestService_PauseResume(t *testing.T) {
	t.Run("pause without a session", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.svc.Pause(context.Background())
		if err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		if result.Status != timer.StatusNotFound || result.Message != "No active session to pause." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("pause records the accumulated segment", func(t *testing.T) {
		f := newFixture(t)
		mustStart(t, f, timer.StartOptions{Billable: true})
		f.clock.Advance(27 * time.Minute)

		result, err := f.svc.Pause(context.Background())
		if err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		if result.Status != timer.StatusSuccess || result.Message != "Timer paused." {
			t.Fatalf("got %v %q", result.Status, result.Message)
		}
		snap := result.Snapshot
		if snap.Status != timer.Paused {
			t.Fatalf("status = %v, want Paused", snap.Status)
		}
		if snap.Active.Accumulated != 27*time.Minute {
			t.Errorf("accumulated = %v, want 27m", snap.Active.Accumulated)
		}
		if snap.Active.Rounded != 30*time.Minute {
			t.Errorf("rounded = %v, want 30m", snap.Active.Rounded)
		}
	})

	t.Run("resume without a pause", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.svc.Resume(context.Background())
		if err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if result.Status != timer.StatusNotFound || result.Message != "No paused session to resume." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("resume conflicts with a running session", func(t *testing.T) {
		f := newFixture(t)
		mustStart(t, f, timer.StartOptions{Billable: true})
		f.clock.Advance(5 * time.Minute)
		if _, err := f.svc.Pause(context.Background()); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		mustStart(t, f, timer.StartOptions{Billable: true})

		result, err := f.svc.Resume(context.Background())
		if err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if result.Status != timer.StatusConflict || result.Message != "A session is already running." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("resume fails when the project disappeared", func(t *testing.T) {
		f := newFixture(t)
		hiding := &hidingProjectStore{ProjectStore: f.store.Projects()}
		svc := timer.NewService(f.store, hiding, f.store.Customers(), f.clock, time.UTC, nil)

		if _, err := svc.Start(context.Background(), timer.StartOptions{ProjectID: f.project.ID, Billable: true}); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		f.clock.Advance(10 * time.Minute)
		if _, err := svc.Pause(context.Background()); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}

		hiding.hidden = f.project.ID
		result, err := svc.Resume(context.Background())
		if err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if result.Status != timer.StatusNotFound || result.Message != "Project no longer exists." {
			t.Fatalf("got %v %q", result.Status, result.Message)
		}

		// The broken chain is gone: a second resume finds nothing paused.
		hiding.hidden = ""
		result, err = svc.Resume(context.Background())
		if err != nil {
			t.Fatalf("second Resume() error = %v", err)
		}
		if result.Message != "No paused session to resume." {
			t.Errorf("message = %q", result.Message)
		}
	})

	t.Run("resume continues the session", func(t *testing.T) {
		f := newFixture(t)
		mustStart(t, f, timer.StartOptions{Notes: "api work", Billable: true})
		f.clock.Advance(27 * time.Minute)
		if _, err := f.svc.Pause(context.Background()); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		f.clock.Advance(5 * time.Minute)

		result, err := f.svc.Resume(context.Background())
		if err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if result.Status != timer.StatusSuccess || result.Message != "Timer resumed for Website." {
			t.Fatalf("got %v %q", result.Status, result.Message)
		}
		snap := result.Snapshot
		if snap.Status != timer.Running {
			t.Fatalf("status = %v, want Running", snap.Status)
		}
		// The break does not count: accumulated is still the paused total.
		if snap.Active.Accumulated != 27*time.Minute {
			t.Errorf("accumulated = %v, want 27m", snap.Active.Accumulated)
		}
		if snap.Active.Notes != "api work" {
			t.Errorf("notes = %q, carried over from the paused segment", snap.Active.Notes)
		}
	})

	t.Run("resume clamps its start to the previous end", func(t *testing.T) {
		f := newFixture(t)
		mustStart(t, f, timer.StartOptions{Billable: true})
		f.clock.Advance(10 * time.Minute)
		if _, err := f.svc.Pause(context.Background()); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		pausedEnd := f.clock.Now()

		// Wall clock moved backwards between pause and resume.
		f.clock.Advance(-3 * time.Minute)

		result, err := f.svc.Resume(context.Background())
		if err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if !result.Snapshot.Active.StartLocal.Equal(pausedEnd) {
			t.Errorf("resumed start = %v, want clamp to %v", result.Snapshot.Active.StartLocal, pausedEnd)
		}
	})
}

func TestService_Stop(t *testing.T) {
	t.Run("stop without a session", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.svc.Stop(context.Background(), timer.StopOptions{})
		if err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		if result.Status != timer.StatusNotFound || result.Message != "No active session to stop." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("stop finalizes the entry", func(t *testing.T) {
		f := newFixture(t)
		start := mustStart(t, f, timer.StartOptions{Billable: true})
		f.clock.Advance(50 * time.Minute)

		result, err := f.svc.Stop(context.Background(), timer.StopOptions{})
		if err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		if result.Status != timer.StatusSuccess || result.Message != "Timer stopped." {
			t.Fatalf("got %v %q", result.Status, result.Message)
		}
		if result.Snapshot.Status != timer.Idle {
			t.Errorf("status = %v, want Idle", result.Snapshot.Status)
		}
		if len(result.Snapshot.Entries) != 1 {
			t.Fatalf("entries = %d, want 1", len(result.Snapshot.Entries))
		}
		e := result.Snapshot.Entries[0]
		if e.EntryID != start.Snapshot.Active.EntryID {
			t.Error("completed entry id mismatch")
		}
		if e.Duration != 50*time.Minute || e.Rounded != 45*time.Minute {
			t.Errorf("duration/rounded = %v/%v, want 50m/45m", e.Duration, e.Rounded)
		}
	})

	t.Run("stop override before start clamps to the start", func(t *testing.T) {
		f := newFixture(t)
		mustStart(t, f, timer.StartOptions{Billable: true})
		at := f.clock.Now().Add(-10 * time.Minute)

		result, err := f.svc.Stop(context.Background(), timer.StopOptions{StopOverride: &at})
		if err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		e := result.Snapshot.Entries[0]
		if e.Duration != 0 {
			t.Errorf("duration = %v, want 0 after clamping", e.Duration)
		}
		if e.Rounded != 0 {
			t.Errorf("rounded = %v, want 0 in history", e.Rounded)
		}
	})

	t.Run("stop override in the future is accepted", func(t *testing.T) {
		f := newFixture(t)
		mustStart(t, f, timer.StartOptions{Billable: true})
		at := f.clock.Now().Add(2 * time.Hour)

		result, err := f.svc.Stop(context.Background(), timer.StopOptions{StopOverride: &at})
		if err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		if got := result.Snapshot.Entries[0].Duration; got != 2*time.Hour {
			t.Errorf("duration = %v, want 2h", got)
		}
	})

	t.Run("stop can overwrite notes, billable and tag", func(t *testing.T) {
		f := newFixture(t)
		start := mustStart(t, f, timer.StartOptions{Notes: "draft", Billable: true})
		f.clock.Advance(20 * time.Minute)

		notes := "final writeup"
		billable := false
		tag := "review"
		_, err := f.svc.Stop(context.Background(), timer.StopOptions{Notes: &notes, Billable: &billable, Tag: &tag})
		if err != nil {
			t.Fatalf("Stop() error = %v", err)
		}

		entry, err := f.store.GetByID(context.Background(), start.Snapshot.Active.EntryID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if entry.Notes != notes || entry.Billable != billable || entry.Tag != tag {
			t.Errorf("entry = %q/%v/%q after stop overrides", entry.Notes, entry.Billable, entry.Tag)
		}
	})
}

func TestService_Cancel(t *testing.T) {
	t.Run("cancel without a session", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.svc.Cancel(context.Background())
		if err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if result.Status != timer.StatusNotFound || result.Message != "No active session to cancel." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("cancel removes the entry outright", func(t *testing.T) {
		f := newFixture(t)
		start := mustStart(t, f, timer.StartOptions{Billable: true})
		f.clock.Advance(45 * time.Minute)

		result, err := f.svc.Cancel(context.Background())
		if err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if result.Status != timer.StatusSuccess || result.Message != "Active session cancelled." {
			t.Fatalf("got %v %q", result.Status, result.Message)
		}
		if result.Snapshot.Status != timer.Idle || len(result.Snapshot.Entries) != 0 {
			t.Errorf("snapshot = %v with %d entries, want Idle and none", result.Snapshot.Status, len(result.Snapshot.Entries))
		}
		entry, err := f.store.GetByID(context.Background(), start.Snapshot.Active.EntryID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if entry != nil {
			t.Error("cancelled entry still exists")
		}
	})

	t.Run("failed delete reports failure but abandons the session", func(t *testing.T) {
		f := newFixture(t)
		failing := &testutil.FailingEntryStore{EntryStore: f.store, DeleteMissing: true}
		svc := timer.NewService(failing, f.store.Projects(), f.store.Customers(), f.clock, time.UTC, nil)

		if _, err := svc.Start(context.Background(), timer.StartOptions{ProjectID: f.project.ID, Billable: true}); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		result, err := svc.Cancel(context.Background())
		if err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if result.Status != timer.StatusFailure || result.Message != "Failed to cancel the active session." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
		// The entry survives in storage and still shows as running.
		if result.Snapshot.Status != timer.Running {
			t.Errorf("snapshot status = %v, want Running", result.Snapshot.Status)
		}
	})
}

func TestService_UpdateNotes(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.svc.UpdateNotes(context.Background(), "anything")
		if err != nil {
			t.Fatalf("UpdateNotes() error = %v", err)
		}
		if result.Status != timer.StatusNotFound || result.Message != "No active or paused session to update notes for." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("running session", func(t *testing.T) {
		f := newFixture(t)
		start := mustStart(t, f, timer.StartOptions{Notes: "old", Billable: true})

		result, err := f.svc.UpdateNotes(context.Background(), "new notes")
		if err != nil {
			t.Fatalf("UpdateNotes() error = %v", err)
		}
		if result.Status != timer.StatusSuccess || result.Message != "Notes updated for the active session." {
			t.Fatalf("got %v %q", result.Status, result.Message)
		}
		if result.Snapshot.Active.Notes != "new notes" {
			t.Errorf("snapshot notes = %q", result.Snapshot.Active.Notes)
		}
		entry, err := f.store.GetByID(context.Background(), start.Snapshot.Active.EntryID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if entry.Notes != "new notes" {
			t.Errorf("stored notes = %q", entry.Notes)
		}
	})

	t.Run("paused session updates the chain tail", func(t *testing.T) {
		f := newFixture(t)
		mustStart(t, f, timer.StartOptions{Billable: true})
		f.clock.Advance(10 * time.Minute)
		pauseResult, err := f.svc.Pause(context.Background())
		if err != nil {
			t.Fatalf("Pause() error = %v", err)
		}

		result, err := f.svc.UpdateNotes(context.Background(), "pause notes")
		if err != nil {
			t.Fatalf("UpdateNotes() error = %v", err)
		}
		if result.Status != timer.StatusSuccess || result.Message != "Notes updated for the paused session." {
			t.Fatalf("got %v %q", result.Status, result.Message)
		}
		entry, err := f.store.GetByID(context.Background(), pauseResult.Snapshot.Active.EntryID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if entry.Notes != "pause notes" {
			t.Errorf("stored notes = %q", entry.Notes)
		}
		// A later resume carries the new notes into the next segment.
		resumeResult, err := f.svc.Resume(context.Background())
		if err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if resumeResult.Snapshot.Active.Notes != "pause notes" {
			t.Errorf("resumed notes = %q", resumeResult.Snapshot.Active.Notes)
		}
	})
}

func TestService_AdjustEntry(t *testing.T) {
	completedEntry := func(t *testing.T, f *fixture, minutes int) string {
		t.Helper()
		start := mustStart(t, f, timer.StartOptions{Billable: true})
		f.clock.Advance(time.Duration(minutes) * time.Minute)
		if _, err := f.svc.Stop(context.Background(), timer.StopOptions{}); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		return start.Snapshot.Active.EntryID
	}

	t.Run("missing entry", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.svc.AdjustEntry(context.Background(), timer.AdjustOptions{EntryID: "nope"})
		if err != nil {
			t.Fatalf("AdjustEntry() error = %v", err)
		}
		if result.Status != timer.StatusNotFound || result.Message != "Time entry not found." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("running entry is rejected", func(t *testing.T) {
		f := newFixture(t)
		start := mustStart(t, f, timer.StartOptions{Billable: true})

		result, err := f.svc.AdjustEntry(context.Background(), timer.AdjustOptions{EntryID: start.Snapshot.Active.EntryID})
		if err != nil {
			t.Fatalf("AdjustEntry() error = %v", err)
		}
		if result.Status != timer.StatusValidationFailed || result.Message != "Stop the active session before editing it." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("end must follow start", func(t *testing.T) {
		f := newFixture(t)
		id := completedEntry(t, f, 30)

		entry, _ := f.store.GetByID(context.Background(), id)
		badEnd := entry.StartLocal.Add(-time.Minute)
		result, err := f.svc.AdjustEntry(context.Background(), timer.AdjustOptions{EntryID: id, EndLocal: &badEnd})
		if err != nil {
			t.Fatalf("AdjustEntry() error = %v", err)
		}
		if result.Status != timer.StatusValidationFailed || result.Message != "End time must be later than the start time." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("no-op is rejected", func(t *testing.T) {
		f := newFixture(t)
		id := completedEntry(t, f, 30)

		result, err := f.svc.AdjustEntry(context.Background(), timer.AdjustOptions{EntryID: id})
		if err != nil {
			t.Fatalf("AdjustEntry() error = %v", err)
		}
		if result.Status != timer.StatusValidationFailed || result.Message != "No changes detected." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("adjusts times and notes", func(t *testing.T) {
		f := newFixture(t)
		id := completedEntry(t, f, 30)

		entry, _ := f.store.GetByID(context.Background(), id)
		newStart := entry.StartLocal.Add(-15 * time.Minute)
		newEnd := entry.EndLocal.Add(15 * time.Minute)
		notes := "adjusted"

		result, err := f.svc.AdjustEntry(context.Background(), timer.AdjustOptions{
			EntryID:    id,
			StartLocal: &newStart,
			EndLocal:   &newEnd,
			Notes:      &notes,
		})
		if err != nil {
			t.Fatalf("AdjustEntry() error = %v", err)
		}
		if result.Status != timer.StatusSuccess || result.Message != "Time entry updated." {
			t.Fatalf("got %v %q", result.Status, result.Message)
		}
		// Snapshot targets the entry's (new) day.
		if result.Snapshot.Date != model.DateOf(newStart) {
			t.Errorf("snapshot date = %v, want %v", result.Snapshot.Date, model.DateOf(newStart))
		}

		updated, _ := f.store.GetByID(context.Background(), id)
		if !updated.StartLocal.Equal(newStart) || !updated.EndLocal.Equal(newEnd) || updated.Notes != notes {
			t.Errorf("entry after adjust = %v-%v %q", updated.StartLocal, updated.EndLocal, updated.Notes)
		}
	})
}

func TestService_DeleteEntry(t *testing.T) {
	t.Run("missing entry", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.svc.DeleteEntry(context.Background(), "nope")
		if err != nil {
			t.Fatalf("DeleteEntry() error = %v", err)
		}
		if result.Status != timer.StatusNotFound || result.Message != "Time entry not found." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("running entry is rejected", func(t *testing.T) {
		f := newFixture(t)
		start := mustStart(t, f, timer.StartOptions{Billable: true})

		result, err := f.svc.DeleteEntry(context.Background(), start.Snapshot.Active.EntryID)
		if err != nil {
			t.Fatalf("DeleteEntry() error = %v", err)
		}
		if result.Status != timer.StatusValidationFailed || result.Message != "Stop the active session before deleting it." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})

	t.Run("deletes a completed entry", func(t *testing.T) {
		f := newFixture(t)
		start := mustStart(t, f, timer.StartOptions{Billable: true})
		f.clock.Advance(20 * time.Minute)
		if _, err := f.svc.Stop(context.Background(), timer.StopOptions{}); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		id := start.Snapshot.Active.EntryID

		result, err := f.svc.DeleteEntry(context.Background(), id)
		if err != nil {
			t.Fatalf("DeleteEntry() error = %v", err)
		}
		if result.Status != timer.StatusSuccess || result.Message != "Time entry deleted." {
			t.Fatalf("got %v %q", result.Status, result.Message)
		}
		if len(result.Snapshot.Entries) != 0 {
			t.Errorf("entries = %d after delete", len(result.Snapshot.Entries))
		}
	})

	t.Run("deleting the chain tail orphans the paused session", func(t *testing.T) {
		f := newFixture(t)
		mustStart(t, f, timer.StartOptions{Billable: true})
		f.clock.Advance(20 * time.Minute)
		pauseResult, err := f.svc.Pause(context.Background())
		if err != nil {
			t.Fatalf("Pause() error = %v", err)
		}

		if _, err := f.svc.DeleteEntry(context.Background(), pauseResult.Snapshot.Active.EntryID); err != nil {
			t.Fatalf("DeleteEntry() error = %v", err)
		}

		result, err := f.svc.Resume(context.Background())
		if err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if result.Status != timer.StatusNotFound || result.Message != "No paused session to resume." {
			t.Errorf("got %v %q", result.Status, result.Message)
		}
	})
}

func TestService_Scenarios(t *testing.T) {
	t.Run("immediate snapshot after start rounds up to one unit", func(t *testing.T) {
		f := newFixture(t)
		result := mustStart(t, f, timer.StartOptions{Billable: true})

		if result.Snapshot.Active.Accumulated != 0 {
			t.Errorf("accumulated = %v, want 0", result.Snapshot.Active.Accumulated)
		}
		if result.Snapshot.Active.Rounded != 15*time.Minute {
			t.Errorf("rounded = %v, want 15m", result.Snapshot.Active.Rounded)
		}
	})

	t.Run("pause resume stop produces two segments", func(t *testing.T) {
		f := newFixture(t)
		mustStart(t, f, timer.StartOptions{Billable: true})
		f.clock.Advance(27 * time.Minute)

		pauseResult, err := f.svc.Pause(context.Background())
		if err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		if pauseResult.Snapshot.Active.Accumulated != 27*time.Minute || pauseResult.Snapshot.Active.Rounded != 30*time.Minute {
			t.Fatalf("paused accumulated/rounded = %v/%v", pauseResult.Snapshot.Active.Accumulated, pauseResult.Snapshot.Active.Rounded)
		}

		f.clock.Advance(5 * time.Minute)
		resumeResult, err := f.svc.Resume(context.Background())
		if err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if resumeResult.Snapshot.Active.Accumulated != 27*time.Minute {
			t.Fatalf("resumed accumulated = %v, want 27m", resumeResult.Snapshot.Active.Accumulated)
		}

		f.clock.Advance(20 * time.Minute)
		stopResult, err := f.svc.Stop(context.Background(), timer.StopOptions{})
		if err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		if stopResult.Snapshot.Status != timer.Idle {
			t.Fatalf("status = %v, want Idle", stopResult.Snapshot.Status)
		}
		if len(stopResult.Snapshot.Entries) != 2 {
			t.Fatalf("entries = %d, want 2", len(stopResult.Snapshot.Entries))
		}

		durations := map[time.Duration]time.Duration{} // duration -> rounded
		for _, e := range stopResult.Snapshot.Entries {
			durations[e.Duration] = e.Rounded
		}
		if durations[27*time.Minute] != 30*time.Minute {
			t.Errorf("27m segment rounded = %v, want 30m", durations[27*time.Minute])
		}
		if durations[20*time.Minute] != 15*time.Minute {
			t.Errorf("20m segment rounded = %v, want 15m", durations[20*time.Minute])
		}
	})

	t.Run("daily summary rounds per project before summing", func(t *testing.T) {
		f := newFixture(t)
		other, err := f.store.Projects().Create(context.Background(), f.customer.ID, "Backend", true)
		if err != nil {
			t.Fatalf("creating project: %v", err)
		}

		track := func(projectID string, minutes int) {
			t.Helper()
			mustStart(t, f, timer.StartOptions{ProjectID: projectID, Billable: true})
			f.clock.Advance(time.Duration(minutes) * time.Minute)
			if _, err := f.svc.Stop(context.Background(), timer.StopOptions{}); err != nil {
				t.Fatalf("Stop() error = %v", err)
			}
		}

		// 7m + 7m on one project must round once (15m), not per segment (0m).
		track(f.project.ID, 7)
		track(f.project.ID, 7)
		track(other.ID, 10)

		today := model.DateOf(f.clock.Now())
		summaries, err := f.svc.DailySummary(context.Background(), today, today)
		if err != nil {
			t.Fatalf("DailySummary() error = %v", err)
		}
		if len(summaries) != 1 {
			t.Fatalf("summaries = %d, want 1", len(summaries))
		}
		sum := summaries[0]
		if sum.Total != 24*time.Minute {
			t.Errorf("total = %v, want 24m", sum.Total)
		}
		// Website: 14m -> 15m; Backend: 10m -> 15m.
		if sum.TotalRounded != 30*time.Minute {
			t.Errorf("total rounded = %v, want 30m", sum.TotalRounded)
		}
		if len(sum.Entries) != 3 {
			t.Errorf("entries = %d, want 3", len(sum.Entries))
		}
	})

	t.Run("daily summary includes the running entry on its day", func(t *testing.T) {
		f := newFixture(t)
		mustStart(t, f, timer.StartOptions{Billable: true})
		f.clock.Advance(20 * time.Minute)

		today := model.DateOf(f.clock.Now())
		summaries, err := f.svc.DailySummary(context.Background(), today, today)
		if err != nil {
			t.Fatalf("DailySummary() error = %v", err)
		}
		if len(summaries) != 1 || len(summaries[0].Entries) != 1 {
			t.Fatalf("summaries/entries = %d", len(summaries))
		}
		if summaries[0].Entries[0].Duration != 20*time.Minute {
			t.Errorf("running duration = %v, want 20m", summaries[0].Entries[0].Duration)
		}
	})

	t.Run("daily summary rejects inverted ranges", func(t *testing.T) {
		f := newFixture(t)
		today := model.DateOf(f.clock.Now())
		if _, err := f.svc.DailySummary(context.Background(), today, today.AddDays(-1)); err == nil {
			t.Error("DailySummary() accepted an inverted range")
		}
	})
}

func TestService_LastCompleted(t *testing.T) {
	f := newFixture(t)

	last, err := f.svc.LastCompleted(context.Background())
	if err != nil {
		t.Fatalf("LastCompleted() error = %v", err)
	}
	if last != nil {
		t.Errorf("got %+v from an empty store, want nil", last)
	}

	mustStart(t, f, timer.StartOptions{Billable: true})
	last, err = f.svc.LastCompleted(context.Background())
	if err != nil {
		t.Fatalf("LastCompleted() error = %v", err)
	}
	if last != nil {
		t.Error("open entry reported as last completed")
	}

	f.clock.Advance(50 * time.Minute)
	if _, err := f.svc.Stop(context.Background(), timer.StopOptions{}); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	last, err = f.svc.LastCompleted(context.Background())
	if err != nil {
		t.Fatalf("LastCompleted() error = %v", err)
	}
	if last == nil {
		t.Fatal("no last completed entry after stop")
	}
	if last.ProjectName != "Website" || last.Duration != 50*time.Minute {
		t.Errorf("got %s %v, want Website 50m", last.ProjectName, last.Duration)
	}
}

// hidingProjectStore makes a project invisible, simulating deletion that
// foreign keys would otherwise block.
type hidingProjectStore struct {
	timer.ProjectStore
	hidden string
}

func (h *hidingProjectStore) GetByID(ctx context.Context, id string) (*model.Project, error) {
	if id == h.hidden {
		return nil, nil
	}
	return h.ProjectStore.GetByID(ctx, id)
}
