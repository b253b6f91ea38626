package timer

import (
	"context"
	"time"

	"ttrack/internal/model"
)

// EntryStore persists time entries. Lookup methods return (nil, nil) when
// no matching entry exists; Update returns (nil, nil) for a missing row.
type EntryStore interface {
	// GetActive returns the single non-deleted entry without an end
	// timestamp, or nil if nothing is running.
	GetActive(ctx context.Context) (*model.TimeEntry, error)

	// GetByID returns an entry by its identifier, deleted or not.
	GetByID(ctx context.Context, id string) (*model.TimeEntry, error)

	// GetByLocalDate returns the non-deleted entries whose local start falls
	// on the given day, ordered by local start ascending.
	GetByLocalDate(ctx context.Context, date model.Date) ([]*model.TimeEntry, error)

	// GetMostRecent returns the non-deleted entry with the latest UTC start.
	GetMostRecent(ctx context.Context) (*model.TimeEntry, error)

	// Create persists a new running entry and returns the stored record.
	Create(ctx context.Context, fields EntryCreate) (*model.TimeEntry, error)

	// Update applies the non-nil fields of patch and returns the updated
	// record.
	Update(ctx context.Context, patch EntryUpdate) (*model.TimeEntry, error)

	// Delete removes an entry outright. Returns false if it did not exist.
	Delete(ctx context.Context, id string) (bool, error)
}

// ProjectStore resolves and manages projects.
type ProjectStore interface {
	GetByID(ctx context.Context, id string) (*model.Project, error)
	GetByCustomer(ctx context.Context, customerID string, includeInactive bool) ([]*model.Project, error)
	Create(ctx context.Context, customerID, name string, active bool) (*model.Project, error)
	Update(ctx context.Context, p *model.Project) (*model.Project, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// CustomerStore resolves and manages customers.
type CustomerStore interface {
	GetByID(ctx context.Context, id string) (*model.Customer, error)
	GetAll(ctx context.Context) ([]*model.Customer, error)
	Create(ctx context.Context, name string) (*model.Customer, error)
	Update(ctx context.Context, c *model.Customer) (*model.Customer, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// EntryCreate holds the fields for a new running entry.
type EntryCreate struct {
	CustomerID string
	ProjectID  string
	StartLocal time.Time
	StartUTC   time.Time
	Notes      string
	Billable   bool
	Tag        string
}

// EntryUpdate is a partial update; nil fields are left untouched.
// Start and end timestamps travel in local/UTC pairs.
type EntryUpdate struct {
	ID          string
	StartLocal  *time.Time
	StartUTC    *time.Time
	EndLocal    *time.Time
	EndUTC      *time.Time
	Notes       *string
	Billable    *bool
	Tag         *string
	PendingSync *bool
	Deleted     *bool
	ServerID    *string
}
