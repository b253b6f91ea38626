package model

import "time"

// TimeEntry is one contiguous start→end span of tracked work.
// A nil EndUTC means the entry is still running; across all non-deleted
// entries at most one may be running at a time.
type TimeEntry struct {
	ID              string // UUID
	CustomerID      string // Foreign key to Customer
	ProjectID       string // Foreign key to Project
	StartLocal      time.Time
	StartUTC        time.Time
	EndLocal        *time.Time // nil while running
	EndUTC          *time.Time // nil while running
	Notes           string
	Billable        bool
	Tag             string // optional short label, max 50 chars
	ServerID        string // remote identifier once synced
	PendingSync     bool
	Deleted         bool // soft-delete flag
	LastModifiedUTC time.Time
}

// Running reports whether the entry has no end timestamp yet.
func (e *TimeEntry) Running() bool { return e.EndUTC == nil }

// Duration returns the local elapsed span, or 0 while still running.
func (e *TimeEntry) Duration() time.Duration {
	if e.EndLocal == nil {
		return 0
	}
	return e.EndLocal.Sub(e.StartLocal)
}

// Project groups time entries under a customer.
type Project struct {
	ID              string // UUID
	CustomerID      string
	Name            string
	Active          bool // false = archived; archived projects reject new entries
	CreatedUTC      time.Time
	LastModifiedUTC time.Time
}

// Customer is the billing counterpart projects belong to.
type Customer struct {
	ID              string // UUID
	Name            string
	Archived        bool
	CreatedUTC      time.Time
	LastModifiedUTC time.Time
}
