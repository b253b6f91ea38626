package timer

import (
	"time"

	"ttrack/internal/model"
)

// sessionState is the in-memory record chaining pause/resume segments into
// one logical session. It only exists between the first pause and the final
// stop; a process restart breaks the chain and leaves the persisted entries
// as independent segments.
//
// The record is never mutated in place: every transition builds a fresh
// value, so a reader holding the gate can never observe a partial update.
type sessionState struct {
	projectID  string
	customerID string
	notes      string
	billable   bool
	tag        string

	// Durations accumulated across all closed segments of this session.
	accumulated time.Duration
	rounded     time.Duration

	lastInteractionUTC time.Time

	// Chain tail: the most recent entry of the session.
	lastEntryID    string
	lastStartLocal time.Time
	lastStartUTC   time.Time
	lastEndLocal   *time.Time
	lastEndUTC     *time.Time

	paused bool
}

// freshSessionState is the zero-accumulation state installed by Start.
func freshSessionState(entry *model.TimeEntry) *sessionState {
	return &sessionState{
		projectID:          entry.ProjectID,
		customerID:         entry.CustomerID,
		notes:              entry.Notes,
		billable:           entry.Billable,
		tag:                entry.Tag,
		lastInteractionUTC: entry.LastModifiedUTC,
		lastStartLocal:     entry.StartLocal,
		lastStartUTC:       entry.StartUTC,
	}
}

// withPausedSegment returns a new state with the just-closed segment folded
// into the accumulated total. The receiver may be nil (first pause of a
// session started before any state existed).
func (s *sessionState) withPausedSegment(entry *model.TimeEntry, segment time.Duration, stopLocal time.Time, stopUTC time.Time) *sessionState {
	var prior time.Duration
	if s != nil {
		prior = s.accumulated
	}
	accumulated := prior + segment
	endLocal := stopLocal
	endUTC := stopUTC
	return &sessionState{
		projectID:          entry.ProjectID,
		customerID:         entry.CustomerID,
		notes:              entry.Notes,
		billable:           entry.Billable,
		tag:                entry.Tag,
		accumulated:        accumulated,
		rounded:            RoundBillable(accumulated, true),
		lastInteractionUTC: entry.LastModifiedUTC,
		lastEntryID:        entry.ID,
		lastStartLocal:     entry.StartLocal,
		lastStartUTC:       entry.StartUTC,
		lastEndLocal:       &endLocal,
		lastEndUTC:         &endUTC,
		paused:             true,
	}
}

// withResumedEntry returns a new running state whose chain tail is the
// freshly created entry. Accumulated durations carry over unchanged.
func (s *sessionState) withResumedEntry(entry *model.TimeEntry) *sessionState {
	next := *s
	next.lastInteractionUTC = entry.LastModifiedUTC
	next.lastEntryID = entry.ID
	next.lastStartLocal = entry.StartLocal
	next.lastStartUTC = entry.StartUTC
	next.lastEndLocal = nil
	next.lastEndUTC = nil
	next.paused = false
	return &next
}

// withNotes returns a copy carrying the new notes text.
func (s *sessionState) withNotes(notes string, interactionUTC time.Time) *sessionState {
	next := *s
	next.notes = notes
	if !interactionUTC.IsZero() {
		next.lastInteractionUTC = interactionUTC
	}
	return &next
}
