package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"masraf/internal/core"
	"masraf/internal/flow"
	"masraf/internal/live"
	"masraf/internal/query"
	"masraf/internal/session"
	"masraf/internal/store"
)

type (
	recordView struct {
		ID            string
		Name          string
		Price         string
		Category      string
		Date          string
		Editing       bool
		PendingDelete bool
		Form          flow.FormSnapshot
	}

	filterView struct {
		Month    int
		Year     int
		Category string
	}

	listView struct {
		Records     []recordView
		Total       string
		Empty       bool
		PeriodLabel string
		Filter      filterView
		Categories  []core.Category
		FormError   string
		StreamQuery string
	}

	monthOption struct {
		Number int
		Name   string
	}

	indexView struct {
		DisplayName string
		Email       string
		Categories  []core.Category
		Months      []monthOption
		Form        formView
		List        listView
	}
)

func monthOptions() []monthOption {
	months := make([]monthOption, 0, 12)
	for m := time.January; m <= time.December; m++ {
		months = append(months, monthOption{Number: int(m), Name: m.String()})
	}
	return months
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		s.redirectToLogin(w, r)
		return
	}

	name := s.sessions.DisplayName(r.Context(), identity.ID)
	if name == "" {
		name = identity.Email
	}

	list, err := s.buildListView(r, identity, parseFilter(r, time.Now()), "")
	if err != nil {
		slog.ErrorContext(r.Context(), "List records failed", "error", err, "owner", identity.ID)
		http.Error(w, "failed to load records", http.StatusInternalServerError)
		return
	}

	s.render(w, r, "index.html", indexView{
		DisplayName: name,
		Email:       identity.Email,
		Categories:  core.Categories(),
		Months:      monthOptions(),
		Form:        formView{Categories: core.Categories()},
		List:        list,
	})
}

// handleListRecords answers a filter change with the whole list panel, so
// the swapped-in element reconnects the event stream scoped to the new
// filter and the previous subscription is torn down with the old element.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		s.redirectToLogin(w, r)
		return
	}
	list, err := s.buildListView(r, identity, parseFilter(r, time.Now()), "")
	if err != nil {
		s.listError(w, r, identity, err)
		return
	}
	s.render(w, r, "record_panel.html", list)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		s.redirectToLogin(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		s.render(w, r, "record_form.html", formView{Error: "Invalid form submission", Categories: core.Categories()})
		return
	}

	name := sanitizeInput(r.FormValue("name"))
	price := sanitizeInput(r.FormValue("price"))
	category, err := core.NormalizeCategory(r.FormValue("category"))
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.render(w, r, "record_form.html", formView{
			Error:      recordErrorMessage(err),
			Name:       name,
			Price:      price,
			Categories: core.Categories(),
		})
		return
	}

	id, err := s.records.CreateRecord(r.Context(), identity.ID, name, price, category)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if !isValidationError(err) {
			slog.ErrorContext(r.Context(), "Create record failed", "error", err, "owner", identity.ID)
			status = http.StatusInternalServerError
		}
		w.WriteHeader(status)
		s.render(w, r, "record_form.html", formView{
			Error:      recordErrorMessage(err),
			Name:       name,
			Price:      price,
			Category:   category.String(),
			Categories: core.Categories(),
		})
		return
	}

	// A fresh empty form; the page script refocuses the name field on the
	// record:created event.
	triggerEvent(w, "record:created", id, "success", "Expense added")
	s.render(w, r, "record_form.html", formView{Categories: core.Categories()})
}

func (s *Server) handleStartEdit(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		s.redirectToLogin(w, r)
		return
	}
	id := r.PathValue("id")

	record, err := s.records.GetRecord(r.Context(), identity.ID, id)
	if err != nil {
		s.listError(w, r, identity, err)
		return
	}

	s.flows.For(identity.ID).StartEdit(id, record)
	s.renderList(w, r, identity, parseFilter(r, time.Now()), "")
}

func (s *Server) handleSaveEdit(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		s.redirectToLogin(w, r)
		return
	}
	id := r.PathValue("id")
	if err := r.ParseForm(); err != nil {
		s.renderList(w, r, identity, parseFilter(r, time.Now()), "Invalid form submission")
		return
	}

	tracker := s.flows.For(identity.ID)
	snapshot, editing := tracker.EditSnapshot(id)
	if !editing {
		// Stale submit after the edit was finished elsewhere.
		s.renderList(w, r, identity, parseFilter(r, time.Now()), "")
		return
	}

	name := sanitizeInput(r.FormValue("name"))
	price := sanitizeInput(r.FormValue("price"))
	category, err := core.NormalizeCategory(r.FormValue("category"))
	if err != nil {
		s.renderList(w, r, identity, parseFilter(r, time.Now()), recordErrorMessage(err))
		return
	}

	if !snapshot.Changed(name, price, category) {
		tracker.FinishEdit(id)
		s.renderList(w, r, identity, parseFilter(r, time.Now()), "")
		return
	}

	err = s.records.UpdateRecord(r.Context(), identity.ID, id, core.RecordUpdate{
		Name:     name,
		Price:    price,
		Category: category,
	})
	if err != nil {
		if isValidationError(err) {
			s.renderList(w, r, identity, parseFilter(r, time.Now()), recordErrorMessage(err))
			return
		}
		s.listError(w, r, identity, err)
		return
	}

	tracker.FinishEdit(id)
	triggerEvent(w, "record:updated", id, "success", "Expense updated")
	s.renderList(w, r, identity, parseFilter(r, time.Now()), "")
}

func (s *Server) handleCancelEdit(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		s.redirectToLogin(w, r)
		return
	}
	s.flows.For(identity.ID).CancelEdit(r.PathValue("id"))
	s.renderList(w, r, identity, parseFilter(r, time.Now()), "")
}

// handleDeleteRecord implements the two-step confirmation: the first request
// arms the confirmation for the row, the second one performs the delete.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		s.redirectToLogin(w, r)
		return
	}
	id := r.PathValue("id")
	tracker := s.flows.For(identity.ID)

	if !tracker.Confirmed(id) {
		tracker.MarkPendingDelete(id)
		s.renderList(w, r, identity, parseFilter(r, time.Now()), "")
		return
	}

	if err := s.records.DeleteRecord(r.Context(), identity.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Already gone; the refreshed list is the answer either way.
			tracker.Forget(id)
			s.renderList(w, r, identity, parseFilter(r, time.Now()), "")
			return
		}
		s.listError(w, r, identity, err)
		return
	}

	tracker.Forget(id)
	triggerEvent(w, "record:deleted", id, "success", "Expense deleted")
	s.renderList(w, r, identity, parseFilter(r, time.Now()), "")
}

func (s *Server) handleCancelDelete(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		s.redirectToLogin(w, r)
		return
	}
	s.flows.For(identity.ID).CancelDelete(r.PathValue("id"))
	s.renderList(w, r, identity, parseFilter(r, time.Now()), "")
}

type formView struct {
	Error      string
	Name       string
	Price      string
	Category   string
	Categories []core.Category
}

func (s *Server) renderList(w http.ResponseWriter, r *http.Request, identity session.Identity, f query.Filter, formError string) {
	list, err := s.buildListView(r, identity, f, formError)
	if err != nil {
		s.listError(w, r, identity, err)
		return
	}
	s.render(w, r, "records.html", list)
}

func (s *Server) listError(w http.ResponseWriter, r *http.Request, identity session.Identity, err error) {
	slog.ErrorContext(r.Context(), "Record operation failed", "error", err, "owner", identity.ID)
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`<div class="error">Something went wrong. Please try again.</div>`))
}

func (s *Server) buildListView(r *http.Request, identity session.Identity, f query.Filter, formError string) (listView, error) {
	records, err := s.lister.ListRecords(r.Context(), query.Build(identity.ID, f))
	if err != nil {
		return listView{}, err
	}
	snapshot := live.BuildSnapshot(r.Context(), records)
	tracker := s.flows.For(identity.ID)
	view := s.snapshotView(snapshot, tracker, f)
	view.FormError = formError
	return view, nil
}

// snapshotView projects one snapshot plus the user's interaction state into
// the list template model.
func (s *Server) snapshotView(snapshot live.Snapshot, tracker *flow.Tracker, f query.Filter) listView {
	view := listView{
		Total:       snapshot.FormattedTotal(),
		Empty:       snapshot.Empty(),
		PeriodLabel: periodLabel(f),
		StreamQuery: streamQuery(f),
		Filter: filterView{
			Month:    f.Month,
			Year:     f.Year,
			Category: f.Category.String(),
		},
		Categories: core.Categories(),
	}
	for _, rec := range snapshot.Records {
		rv := recordView{
			ID:            rec.ID,
			Name:          rec.Name,
			Price:         rec.Price,
			Category:      rec.Category.String(),
			Date:          rec.CreationDate,
			Editing:       tracker.Editing() == rec.ID,
			PendingDelete: tracker.PendingDelete() == rec.ID,
		}
		if rv.Editing {
			if form, ok := tracker.EditSnapshot(rec.ID); ok {
				rv.Form = form
			}
		}
		if rv.Date == "" {
			rv.Date = core.DisplayDate(rec.CreatedAt)
		}
		view.Records = append(view.Records, rv)
	}
	return view
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrEmptyName,
		core.ErrEmptyPrice,
		core.ErrCommaPrice,
		core.ErrInvalidPrice,
		core.ErrNegativePrice,
		core.ErrInvalidCategory,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// triggerEvent announces a completed mutation through HX-Trigger: the record
// event for targeted swaps plus a toast notification for the page script.
func triggerEvent(w http.ResponseWriter, event, id, level, message string) {
	payload := map[string]any{
		event: map[string]string{"id": id},
		"notify": map[string]any{
			"level":    level,
			"message":  message,
			"duration": 3000,
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	w.Header().Set("HX-Trigger", string(encoded))
}
