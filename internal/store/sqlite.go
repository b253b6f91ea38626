package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ttrack/internal/model"
	"ttrack/internal/store/migrations"
	"ttrack/internal/timer"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// timeFormat is how timestamps are stored; RFC 3339 keeps the UTC offset
// so local timestamps survive a round-trip.
const timeFormat = time.RFC3339Nano

const maxNameLength = 200
const maxTagLength = 50

// SQLiteStore implements the timer store interfaces using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	clock timer.Clock
	idgen timer.IDGenerator
	path  string
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward
	// compatibility).
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (or creates) a SQLite database at path and brings
// its schema to the latest version.
func NewSQLiteStore(path string, clock timer.Clock, idgen timer.IDGenerator) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	s := NewSQLiteStoreFromDB(db, clock, idgen)
	s.path = path
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing connection. The caller is
// responsible for the schema being in place.
func NewSQLiteStoreFromDB(db *sql.DB, clock timer.Clock, idgen timer.IDGenerator) *SQLiteStore {
	if clock == nil {
		clock = timer.RealClock{}
	}
	if idgen == nil {
		idgen = timer.UUIDGenerator{}
	}
	return &SQLiteStore{db: db, clock: clock, idgen: idgen}
}

// CheckMigrationStatus reports whether the schema is at the latest version.
func (s *SQLiteStore) CheckMigrationStatus() error {
	return migrations.CheckMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Time entry operations

const entryColumns = `id, customer_id, project_id, start_local, start_utc,
	end_local, end_utc, notes, billable, tag, server_id, pending_sync,
	deleted, last_modified_utc`

func (s *SQLiteStore) GetActive(ctx context.Context) (*model.TimeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE end_utc IS NULL AND deleted = 0
		 ORDER BY start_utc DESC LIMIT 1`)
	return scanEntry(row)
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*model.TimeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, id)
	return scanEntry(row)
}

func (s *SQLiteStore) GetByLocalDate(ctx context.Context, date model.Date) ([]*model.TimeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE deleted = 0 AND local_date = ?
		 ORDER BY start_local`, date.String())
	if err != nil {
		return nil, fmt.Errorf("querying entries by date: %w", err)
	}
	defer rows.Close()

	var entries []*model.TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) GetMostRecent(ctx context.Context) (*model.TimeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries
		 WHERE deleted = 0
		 ORDER BY start_utc DESC LIMIT 1`)
	return scanEntry(row)
}

func (s *SQLiteStore) Create(ctx context.Context, fields timer.EntryCreate) (*model.TimeEntry, error) {
	if fields.CustomerID == "" {
		return nil, fmt.Errorf("customer id is required")
	}
	if fields.ProjectID == "" {
		return nil, fmt.Errorf("project id is required")
	}

	entry := &model.TimeEntry{
		ID:              s.idgen.New(),
		CustomerID:      fields.CustomerID,
		ProjectID:       fields.ProjectID,
		StartLocal:      fields.StartLocal,
		StartUTC:        fields.StartUTC,
		Notes:           sanitizeNotes(fields.Notes),
		Billable:        fields.Billable,
		Tag:             sanitizeTag(fields.Tag),
		PendingSync:     true,
		LastModifiedUTC: s.clock.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO time_entries (id, customer_id, project_id, start_local,
			start_utc, end_local, end_utc, local_date, notes, billable, tag,
			server_id, pending_sync, deleted, last_modified_utc)
		 VALUES (?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?, ?, '', 1, 0, ?)`,
		entry.ID, entry.CustomerID, entry.ProjectID,
		formatTime(entry.StartLocal), formatTime(entry.StartUTC),
		model.DateOf(entry.StartLocal).String(),
		entry.Notes, entry.Billable, entry.Tag,
		formatTime(entry.LastModifiedUTC))
	if err != nil {
		return nil, fmt.Errorf("inserting entry: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) Update(ctx context.Context, patch timer.EntryUpdate) (*model.TimeEntry, error) {
	entry, err := s.GetByID(ctx, patch.ID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	if patch.StartLocal != nil && patch.StartUTC != nil {
		entry.StartLocal = *patch.StartLocal
		entry.StartUTC = *patch.StartUTC
	}
	if patch.EndLocal != nil && patch.EndUTC != nil {
		endLocal := *patch.EndLocal
		endUTC := *patch.EndUTC
		entry.EndLocal = &endLocal
		entry.EndUTC = &endUTC
	}
	if patch.Notes != nil {
		entry.Notes = sanitizeNotes(*patch.Notes)
	}
	if patch.Billable != nil {
		entry.Billable = *patch.Billable
	}
	if patch.Tag != nil {
		entry.Tag = sanitizeTag(*patch.Tag)
	}
	if patch.Deleted != nil {
		entry.Deleted = *patch.Deleted
	}
	switch {
	case patch.PendingSync != nil && *patch.PendingSync:
		entry.PendingSync = true
	case patch.PendingSync != nil, patch.ServerID != nil:
		entry.PendingSync = false
		if patch.ServerID != nil {
			if trimmed := strings.TrimSpace(*patch.ServerID); trimmed != "" {
				entry.ServerID = trimmed
			}
		}
	}
	entry.LastModifiedUTC = s.clock.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE time_entries SET start_local = ?, start_utc = ?, end_local = ?,
			end_utc = ?, local_date = ?, notes = ?, billable = ?, tag = ?,
			server_id = ?, pending_sync = ?, deleted = ?, last_modified_utc = ?
		 WHERE id = ?`,
		formatTime(entry.StartLocal), formatTime(entry.StartUTC),
		formatTimePtr(entry.EndLocal), formatTimePtr(entry.EndUTC),
		model.DateOf(entry.StartLocal).String(),
		entry.Notes, entry.Billable, entry.Tag,
		entry.ServerID, entry.PendingSync, entry.Deleted,
		formatTime(entry.LastModifiedUTC), entry.ID)
	if err != nil {
		return nil, fmt.Errorf("updating entry: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Project operations

// Projects returns the store's ProjectStore view.
func (s *SQLiteStore) Projects() timer.ProjectStore { return (*projectStore)(s) }

// Customers returns the store's CustomerStore view.
func (s *SQLiteStore) Customers() timer.CustomerStore { return (*customerStore)(s) }

// projectStore and customerStore give the single SQLiteStore distinct
// method sets for the narrower collaborator interfaces.
type projectStore SQLiteStore

func (p *projectStore) GetByID(ctx context.Context, id string) (*model.Project, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, customer_id, name, active, created_utc, last_modified_utc
		 FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func (p *projectStore) GetByCustomer(ctx context.Context, customerID string, includeInactive bool) ([]*model.Project, error) {
	query := `SELECT id, customer_id, name, active, created_utc, last_modified_utc
		 FROM projects WHERE customer_id = ?`
	if !includeInactive {
		query += ` AND active = 1`
	}
	query += ` ORDER BY name COLLATE NOCASE`

	rows, err := p.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (p *projectStore) Create(ctx context.Context, customerID, name string, active bool) (*model.Project, error) {
	if customerID == "" {
		return nil, fmt.Errorf("customer id is required")
	}
	normalized, err := normalizeName(name, "project")
	if err != nil {
		return nil, err
	}

	now := p.clock.Now().UTC()
	project := &model.Project{
		ID:              p.idgen.New(),
		CustomerID:      customerID,
		Name:            normalized,
		Active:          active,
		CreatedUTC:      now,
		LastModifiedUTC: now,
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO projects (id, customer_id, name, active, created_utc, last_modified_utc)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		project.ID, project.CustomerID, project.Name, project.Active,
		formatTime(project.CreatedUTC), formatTime(project.LastModifiedUTC))
	if err != nil {
		return nil, fmt.Errorf("inserting project: %w", err)
	}
	return project, nil
}

func (p *projectStore) Update(ctx context.Context, project *model.Project) (*model.Project, error) {
	normalized, err := normalizeName(project.Name, "project")
	if err != nil {
		return nil, err
	}

	updated := *project
	updated.Name = normalized
	updated.LastModifiedUTC = p.clock.Now().UTC()

	res, err := p.db.ExecContext(ctx,
		`UPDATE projects SET customer_id = ?, name = ?, active = ?, last_modified_utc = ?
		 WHERE id = ?`,
		updated.CustomerID, updated.Name, updated.Active,
		formatTime(updated.LastModifiedUTC), updated.ID)
	if err != nil {
		return nil, fmt.Errorf("updating project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return &updated, nil
}

func (p *projectStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Customer operations

type customerStore SQLiteStore

func (c *customerStore) GetByID(ctx context.Context, id string) (*model.Customer, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, name, archived, created_utc, last_modified_utc
		 FROM customers WHERE id = ?`, id)
	return scanCustomer(row)
}

func (c *customerStore) GetAll(ctx context.Context) ([]*model.Customer, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, archived, created_utc, last_modified_utc
		 FROM customers ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("querying customers: %w", err)
	}
	defer rows.Close()

	var customers []*model.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	return customers, rows.Err()
}

func (c *customerStore) Create(ctx context.Context, name string) (*model.Customer, error) {
	normalized, err := normalizeName(name, "customer")
	if err != nil {
		return nil, err
	}

	now := c.clock.Now().UTC()
	customer := &model.Customer{
		ID:              c.idgen.New(),
		Name:            normalized,
		CreatedUTC:      now,
		LastModifiedUTC: now,
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO customers (id, name, archived, created_utc, last_modified_utc)
		 VALUES (?, ?, 0, ?, ?)`,
		customer.ID, customer.Name,
		formatTime(customer.CreatedUTC), formatTime(customer.LastModifiedUTC))
	if err != nil {
		return nil, fmt.Errorf("inserting customer: %w", err)
	}
	return customer, nil
}

func (c *customerStore) Update(ctx context.Context, customer *model.Customer) (*model.Customer, error) {
	normalized, err := normalizeName(customer.Name, "customer")
	if err != nil {
		return nil, err
	}

	updated := *customer
	updated.Name = normalized
	updated.LastModifiedUTC = c.clock.Now().UTC()

	res, err := c.db.ExecContext(ctx,
		`UPDATE customers SET name = ?, archived = ?, last_modified_utc = ?
		 WHERE id = ?`,
		updated.Name, updated.Archived,
		formatTime(updated.LastModifiedUTC), updated.ID)
	if err != nil {
		return nil, fmt.Errorf("updating customer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return &updated, nil
}

func (c *customerStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting customer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Scan helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*model.TimeEntry, error) {
	var e model.TimeEntry
	var startLocal, startUTC, lastModified string
	var endLocal, endUTC sql.NullString

	err := row.Scan(&e.ID, &e.CustomerID, &e.ProjectID, &startLocal, &startUTC,
		&endLocal, &endUTC, &e.Notes, &e.Billable, &e.Tag, &e.ServerID,
		&e.PendingSync, &e.Deleted, &lastModified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("scanning entry: %w", err)
	}

	if e.StartLocal, err = parseTime(startLocal); err != nil {
		return nil, err
	}
	if e.StartUTC, err = parseTime(startUTC); err != nil {
		return nil, err
	}
	if e.EndLocal, err = parseTimePtr(endLocal); err != nil {
		return nil, err
	}
	if e.EndUTC, err = parseTimePtr(endUTC); err != nil {
		return nil, err
	}
	if e.LastModifiedUTC, err = parseTime(lastModified); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanProject(row rowScanner) (*model.Project, error) {
	var p model.Project
	var created, lastModified string

	err := row.Scan(&p.ID, &p.CustomerID, &p.Name, &p.Active, &created, &lastModified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning project: %w", err)
	}

	if p.CreatedUTC, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.LastModifiedUTC, err = parseTime(lastModified); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanCustomer(row rowScanner) (*model.Customer, error) {
	var c model.Customer
	var created, lastModified string

	err := row.Scan(&c.ID, &c.Name, &c.Archived, &created, &lastModified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning customer: %w", err)
	}

	if c.CreatedUTC, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.LastModifiedUTC, err = parseTime(lastModified); err != nil {
		return nil, err
	}
	return &c, nil
}

func formatTime(t time.Time) string { return t.Format(timeFormat) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func normalizeName(name, kind string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%s name is required", kind)
	}
	if len(trimmed) > maxNameLength {
		return "", fmt.Errorf("%s name cannot exceed %d characters", kind, maxNameLength)
	}
	return trimmed, nil
}

func sanitizeTag(tag string) string {
	trimmed := strings.TrimSpace(tag)
	if len(trimmed) > maxTagLength {
		return trimmed[:maxTagLength]
	}
	return trimmed
}

func sanitizeNotes(notes string) string { return strings.TrimSpace(notes) }
