package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ttrack/internal/api"
	"ttrack/internal/config"
	"ttrack/internal/model"
	"ttrack/internal/report"
	"ttrack/internal/store"
	"ttrack/internal/timer"
)

// App is the application layer between the CLI and the timer service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw strings, and manages the store lifecycle on Close.
type App struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	service  *timer.Service
	exporter *report.Exporter
	loc      *time.Location
	clock    timer.Clock
	logger   timer.Logger
	logFile  *os.File
}

// NewApp creates a fully wired App from the given config.
// command identifies the CLI command being run (e.g. "start", "report").
// The caller must call Close when done.
func NewApp(cfg *config.Config, command string) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.NewStoreFromConfig(cfg.Database, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	logger, logFile, err := newLogger(cfg.LogDir, command)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	clock := timer.RealClock{}
	adapted := &slogAdapter{l: logger}
	svc := timer.NewService(st, st.Projects(), st.Customers(), clock, loc, adapted)

	return &App{
		cfg:      cfg,
		store:    st,
		service:  svc,
		exporter: report.NewExporter(svc, clock, loc),
		loc:      loc,
		clock:    clock,
		logger:   adapted,
		logFile:  logFile,
	}, nil
}

// Service exposes the session engine for command handlers.
func (a *App) Service() *timer.Service { return a.service }

// Customers exposes the customer store.
func (a *App) Customers() timer.CustomerStore { return a.store.Customers() }

// Projects exposes the project store.
func (a *App) Projects() timer.ProjectStore { return a.store.Projects() }

// WriteReportPreset writes the CSV report for a preset range to w.
func (a *App) WriteReportPreset(ctx context.Context, w io.Writer, preset report.Preset) error {
	return a.exporter.WritePreset(ctx, w, preset)
}

// WriteReportRange writes the CSV report for an inclusive date range to w.
func (a *App) WriteReportRange(ctx context.Context, w io.Writer, start, end model.Date) error {
	return a.exporter.WriteRange(ctx, w, start, end)
}

// Serve runs the HTTP API until ctx is cancelled. An empty addr uses the
// configured listen address.
func (a *App) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.cfg.API.ListenAddr
	}
	srv := api.NewServer(a.service, a.store.Projects(), a.store.Customers(), a.exporter, a.logger)
	return srv.ListenAndServe(ctx, addr)
}

// FindCustomer resolves a customer by name, case-insensitively.
func (a *App) FindCustomer(ctx context.Context, name string) (*model.Customer, error) {
	customers, err := a.store.Customers().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	for _, c := range customers {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("customer %q not found", name)
}

// FindProject resolves a project by customer and project name.
func (a *App) FindProject(ctx context.Context, customerName, projectName string) (*model.Customer, *model.Project, error) {
	customer, err := a.FindCustomer(ctx, customerName)
	if err != nil {
		return nil, nil, err
	}
	projects, err := a.store.Projects().GetByCustomer(ctx, customer.ID, true)
	if err != nil {
		return nil, nil, fmt.Errorf("listing projects: %w", err)
	}
	for _, p := range projects {
		if strings.EqualFold(p.Name, strings.TrimSpace(projectName)) {
			return customer, p, nil
		}
	}
	return nil, nil, fmt.Errorf("project %q not found for customer %q", projectName, customerName)
}

// ParseLocalTime parses a timestamp in the configured zone. Accepts
// "15:04" (today), "2006-01-02 15:04" and RFC 3339.
func (a *App) ParseLocalTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(a.loc), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", raw, a.loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("15:04", raw, a.loc); err == nil {
		now := a.clock.Now().In(a.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, a.loc), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q (want HH:MM, YYYY-MM-DD HH:MM or RFC 3339)", raw)
}

// Close releases the store and log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
