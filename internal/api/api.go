// Package api exposes the session engine over a local HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ttrack/internal/model"
	"ttrack/internal/report"
	"ttrack/internal/timer"
)

// Server routes HTTP requests to the timer service. It is intended for
// localhost use; there is no authentication layer.
type Server struct {
	svc       *timer.Service
	customers timer.CustomerStore
	projects  timer.ProjectStore
	exporter  *report.Exporter
	logger    timer.Logger
	mux       *http.ServeMux
}

// NewServer wires the route table. logger may be nil.
func NewServer(svc *timer.Service, projects timer.ProjectStore, customers timer.CustomerStore, exporter *report.Exporter, logger timer.Logger) *Server {
	if logger == nil {
		logger = timer.NewNopLogger()
	}
	s := &Server{
		svc:       svc,
		customers: customers,
		projects:  projects,
		exporter:  exporter,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("GET /api/session", s.handleSnapshot)
	s.mux.HandleFunc("POST /api/session/start", s.handleStart)
	s.mux.HandleFunc("POST /api/session/pause", s.handlePause)
	s.mux.HandleFunc("POST /api/session/resume", s.handleResume)
	s.mux.HandleFunc("POST /api/session/stop", s.handleStop)
	s.mux.HandleFunc("POST /api/session/cancel", s.handleCancel)
	s.mux.HandleFunc("PUT /api/session/notes", s.handleUpdateNotes)

	s.mux.HandleFunc("PATCH /api/entries/{id}", s.handleAdjustEntry)
	s.mux.HandleFunc("DELETE /api/entries/{id}", s.handleDeleteEntry)

	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/report", s.handleReport)

	s.mux.HandleFunc("GET /api/customers", s.handleListCustomers)
	s.mux.HandleFunc("POST /api/customers", s.handleCreateCustomer)
	s.mux.HandleFunc("GET /api/customers/{id}", s.handleGetCustomer)
	s.mux.HandleFunc("PUT /api/customers/{id}", s.handleUpdateCustomer)
	s.mux.HandleFunc("POST /api/customers/{id}/archive", s.handleArchiveCustomer)
	s.mux.HandleFunc("DELETE /api/customers/{id}", s.handleDeleteCustomer)

	s.mux.HandleFunc("GET /api/customers/{id}/projects", s.handleListProjects)
	s.mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	s.mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	s.mux.HandleFunc("PUT /api/projects/{id}", s.handleUpdateProject)
	s.mux.HandleFunc("POST /api/projects/{id}/archive", s.handleArchiveProject)
	s.mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Wire DTOs. Durations travel as whole seconds, timestamps as RFC 3339.

type snapshotDTO struct {
	Status  string            `json:"status"`
	Date    string            `json:"date"`
	Active  *activeSessionDTO `json:"active,omitempty"`
	Entries []historyEntryDTO `json:"entries"`
}

type activeSessionDTO struct {
	EntryID            string    `json:"entryId"`
	CustomerID         string    `json:"customerId"`
	CustomerName       string    `json:"customerName"`
	ProjectID          string    `json:"projectId"`
	ProjectName        string    `json:"projectName"`
	StartLocal         time.Time `json:"startLocal"`
	StartUTC           time.Time `json:"startUtc"`
	LastInteractionUTC time.Time `json:"lastInteractionUtc"`
	AccumulatedSeconds int64     `json:"accumulatedSeconds"`
	RoundedSeconds     int64     `json:"roundedSeconds"`
	Paused             bool      `json:"paused"`
	Notes              string    `json:"notes"`
	Billable           bool      `json:"billable"`
	Tag                string    `json:"tag,omitempty"`
}

type historyEntryDTO struct {
	EntryID         string    `json:"entryId"`
	CustomerID      string    `json:"customerId"`
	CustomerName    string    `json:"customerName"`
	ProjectID       string    `json:"projectId"`
	ProjectName     string    `json:"projectName"`
	StartLocal      time.Time `json:"startLocal"`
	EndLocal        time.Time `json:"endLocal"`
	DurationSeconds int64     `json:"durationSeconds"`
	RoundedSeconds  int64     `json:"roundedSeconds"`
	Billable        bool      `json:"billable"`
	Notes           string    `json:"notes"`
	Tag             string    `json:"tag,omitempty"`
}

type summaryDTO struct {
	Date                string            `json:"date"`
	TotalSeconds        int64             `json:"totalSeconds"`
	TotalRoundedSeconds int64             `json:"totalRoundedSeconds"`
	Entries             []historyEntryDTO `json:"entries"`
}

type commandResultDTO struct {
	Status   string       `json:"status"`
	Message  string       `json:"message,omitempty"`
	Snapshot *snapshotDTO `json:"snapshot,omitempty"`
}

type customerDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

type projectDTO struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
}

func toSnapshotDTO(snap *timer.Snapshot) *snapshotDTO {
	if snap == nil {
		return nil
	}
	dto := &snapshotDTO{
		Status:  snap.Status.String(),
		Date:    snap.Date.String(),
		Entries: make([]historyEntryDTO, 0, len(snap.Entries)),
	}
	if snap.Active != nil {
		a := snap.Active
		dto.Active = &activeSessionDTO{
			EntryID:            a.EntryID,
			CustomerID:         a.CustomerID,
			CustomerName:       a.CustomerName,
			ProjectID:          a.ProjectID,
			ProjectName:        a.ProjectName,
			StartLocal:         a.StartLocal,
			StartUTC:           a.StartUTC,
			LastInteractionUTC: a.LastInteractionUTC,
			AccumulatedSeconds: int64(a.Accumulated.Seconds()),
			RoundedSeconds:     int64(a.Rounded.Seconds()),
			Paused:             a.Paused,
			Notes:              a.Notes,
			Billable:           a.Billable,
			Tag:                a.Tag,
		}
	}
	for _, e := range snap.Entries {
		dto.Entries = append(dto.Entries, toHistoryDTO(e))
	}
	return dto
}

func toHistoryDTO(e timer.HistoryEntry) historyEntryDTO {
	return historyEntryDTO{
		EntryID:         e.EntryID,
		CustomerID:      e.CustomerID,
		CustomerName:    e.CustomerName,
		ProjectID:       e.ProjectID,
		ProjectName:     e.ProjectName,
		StartLocal:      e.StartLocal,
		EndLocal:        e.EndLocal,
		DurationSeconds: int64(e.Duration.Seconds()),
		RoundedSeconds:  int64(e.Rounded.Seconds()),
		Billable:        e.Billable,
		Notes:           e.Notes,
		Tag:             e.Tag,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Session handlers

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	date, ok := s.optionalDate(w, r, "date")
	if !ok {
		return
	}
	snap, err := s.svc.Snapshot(r.Context(), date)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

type startRequest struct {
	ProjectID     string     `json:"projectId"`
	CustomerID    string     `json:"customerId,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Billable      *bool      `json:"billable,omitempty"`
	Tag           string     `json:"tag,omitempty"`
	StartOverride *time.Time `json:"startOverride,omitempty"`
	ForceRestart  bool       `json:"forceRestart,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !s.decode(w, r, &req) {
		return
	}
	billable := true
	if req.Billable != nil {
		billable = *req.Billable
	}
	result, err := s.svc.Start(r.Context(), timer.StartOptions{
		ProjectID:     req.ProjectID,
		CustomerID:    req.CustomerID,
		Notes:         req.Notes,
		Billable:      billable,
		Tag:           req.Tag,
		StartOverride: req.StartOverride,
		ForceRestart:  req.ForceRestart,
	})
	s.writeResult(w, r, result, err)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Pause(r.Context())
	s.writeResult(w, r, result, err)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Resume(r.Context())
	s.writeResult(w, r, result, err)
}

type stopRequest struct {
	Notes        *string    `json:"notes,omitempty"`
	Billable     *bool      `json:"billable,omitempty"`
	Tag          *string    `json:"tag,omitempty"`
	StopOverride *time.Time `json:"stopOverride,omitempty"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.svc.Stop(r.Context(), timer.StopOptions{
		Notes:        req.Notes,
		Billable:     req.Billable,
		Tag:          req.Tag,
		StopOverride: req.StopOverride,
	})
	s.writeResult(w, r, result, err)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Cancel(r.Context())
	s.writeResult(w, r, result, err)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleUpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.svc.UpdateNotes(r.Context(), req.Notes)
	s.writeResult(w, r, result, err)
}

type adjustRequest struct {
	StartLocal *time.Time `json:"startLocal,omitempty"`
	EndLocal   *time.Time `json:"endLocal,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}

func (s *Server) handleAdjustEntry(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.svc.AdjustEntry(r.Context(), timer.AdjustOptions{
		EntryID:    r.PathValue("id"),
		StartLocal: req.StartLocal,
		EndLocal:   req.EndLocal,
		Notes:      req.Notes,
	})
	s.writeResult(w, r, result, err)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.DeleteEntry(r.Context(), r.PathValue("id"))
	s.writeResult(w, r, result, err)
}

// Read handlers

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	date, ok := s.optionalDate(w, r, "date")
	if !ok {
		return
	}
	entries, err := s.svc.History(r.Context(), date)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	dtos := make([]historyEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toHistoryDTO(e))
	}
	s.writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	start, ok := s.requiredDate(w, r, "start")
	if !ok {
		return
	}
	end, ok := s.requiredDate(w, r, "end")
	if !ok {
		return
	}
	summaries, err := s.svc.DailySummary(r.Context(), start, end)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	dtos := make([]summaryDTO, 0, len(summaries))
	for _, sum := range summaries {
		entries := make([]historyEntryDTO, 0, len(sum.Entries))
		for _, e := range sum.Entries {
			entries = append(entries, toHistoryDTO(e))
		}
		dtos = append(dtos, summaryDTO{
			Date:                sum.Date.String(),
			TotalSeconds:        int64(sum.Total.Seconds()),
			TotalRoundedSeconds: int64(sum.TotalRounded.Seconds()),
			Entries:             entries,
		})
	}
	s.writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")

	if preset := r.URL.Query().Get("preset"); preset != "" {
		if err := s.exporter.WritePreset(r.Context(), w, report.Preset(preset)); err != nil {
			s.internalError(w, r, err)
		}
		return
	}

	start, ok := s.requiredDate(w, r, "start")
	if !ok {
		return
	}
	end, ok := s.requiredDate(w, r, "end")
	if !ok {
		return
	}
	if err := s.exporter.WriteRange(r.Context(), w, start, end); err != nil {
		s.internalError(w, r, err)
	}
}

// Customer and project handlers

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.customers.GetAll(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	dtos := make([]customerDTO, 0, len(customers))
	for _, c := range customers {
		dtos = append(dtos, customerDTO{ID: c.ID, Name: c.Name, Archived: c.Archived})
	}
	s.writeJSON(w, http.StatusOK, dtos)
}

type createCustomerRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if !s.decode(w, r, &req) {
		return
	}
	customer, err := s.customers.Create(r.Context(), req.Name)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, customerDTO{ID: customer.ID, Name: customer.Name})
}

func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := s.customers.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if customer == nil {
		s.notFound(w, "customer not found")
		return
	}
	s.writeJSON(w, http.StatusOK, customerDTO{ID: customer.ID, Name: customer.Name, Archived: customer.Archived})
}

type updateCustomerRequest struct {
	Name     *string `json:"name"`
	Archived *bool   `json:"archived"`
}

func (s *Server) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req updateCustomerRequest
	if !s.decode(w, r, &req) {
		return
	}
	customer, err := s.customers.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if customer == nil {
		s.notFound(w, "customer not found")
		return
	}
	if req.Name != nil {
		customer.Name = *req.Name
	}
	if req.Archived != nil {
		customer.Archived = *req.Archived
	}
	updated, err := s.customers.Update(r.Context(), customer)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if updated == nil {
		s.notFound(w, "customer not found")
		return
	}
	s.writeJSON(w, http.StatusOK, customerDTO{ID: updated.ID, Name: updated.Name, Archived: updated.Archived})
}

func (s *Server) handleArchiveCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := s.customers.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if customer == nil {
		s.notFound(w, "customer not found")
		return
	}
	customer.Archived = true
	updated, err := s.customers.Update(r.Context(), customer)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if updated == nil {
		s.notFound(w, "customer not found")
		return
	}
	s.writeJSON(w, http.StatusOK, customerDTO{ID: updated.ID, Name: updated.Name, Archived: updated.Archived})
}

func (s *Server) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.customers.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if !deleted {
		s.notFound(w, "customer not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("includeInactive") == "true"
	projects, err := s.projects.GetByCustomer(r.Context(), r.PathValue("id"), includeInactive)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	dtos := make([]projectDTO, 0, len(projects))
	for _, p := range projects {
		dtos = append(dtos, projectDTO{ID: p.ID, CustomerID: p.CustomerID, Name: p.Name, Active: p.Active})
	}
	s.writeJSON(w, http.StatusOK, dtos)
}

type createProjectRequest struct {
	CustomerID string `json:"customerId"`
	Name       string `json:"name"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	project, err := s.projects.Create(r.Context(), req.CustomerID, req.Name, true)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, projectDTO{
		ID: project.ID, CustomerID: project.CustomerID, Name: project.Name, Active: project.Active,
	})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if project == nil {
		s.notFound(w, "project not found")
		return
	}
	s.writeJSON(w, http.StatusOK, projectDTO{
		ID: project.ID, CustomerID: project.CustomerID, Name: project.Name, Active: project.Active,
	})
}

type updateProjectRequest struct {
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req updateProjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	project, err := s.projects.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if project == nil {
		s.notFound(w, "project not found")
		return
	}
	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Active != nil {
		project.Active = *req.Active
	}
	updated, err := s.projects.Update(r.Context(), project)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if updated == nil {
		s.notFound(w, "project not found")
		return
	}
	s.writeJSON(w, http.StatusOK, projectDTO{
		ID: updated.ID, CustomerID: updated.CustomerID, Name: updated.Name, Active: updated.Active,
	})
}

func (s *Server) handleArchiveProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if project == nil {
		s.notFound(w, "project not found")
		return
	}
	project.Active = false
	updated, err := s.projects.Update(r.Context(), project)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if updated == nil {
		s.notFound(w, "project not found")
		return
	}
	s.writeJSON(w, http.StatusOK, projectDTO{
		ID: updated.ID, CustomerID: updated.CustomerID, Name: updated.Name, Active: updated.Active,
	})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.projects.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if !deleted {
		s.notFound(w, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Response plumbing

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, result *timer.CommandResult, err error) {
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.writeJSON(w, httpStatus(result.Status), commandResultDTO{
		Status:   result.Status.String(),
		Message:  result.Message,
		Snapshot: toSnapshotDTO(result.Snapshot),
	})
}

func httpStatus(status timer.Status) int {
	switch status {
	case timer.StatusSuccess:
		return http.StatusOK
	case timer.StatusValidationFailed:
		return http.StatusBadRequest
	case timer.StatusConflict:
		return http.StatusConflict
	case timer.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true // all request fields are optional or validated downstream
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.badRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) optionalDate(w http.ResponseWriter, r *http.Request, param string) (model.Date, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return model.Date{}, true
	}
	date, err := model.ParseDate(raw)
	if err != nil {
		s.badRequest(w, fmt.Sprintf("invalid %s: %v", param, err))
		return model.Date{}, false
	}
	return date, true
}

func (s *Server) requiredDate(w http.ResponseWriter, r *http.Request, param string) (model.Date, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		s.badRequest(w, fmt.Sprintf("%s parameter is required", param))
		return model.Date{}, false
	}
	date, err := model.ParseDate(raw)
	if err != nil {
		s.badRequest(w, fmt.Sprintf("invalid %s: %v", param, err))
		return model.Date{}, false
	}
	return date, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func (s *Server) notFound(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusNotFound, errorResponse{Error: msg})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
