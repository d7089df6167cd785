package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"masraf/internal/core"
	"masraf/internal/log"
	"masraf/internal/query"
)

// render executes a template, failing the response on error.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", "template", name)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed", log.FieldError, err.Error(), "template", name)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// sanitizeInput removes control characters and trims whitespace
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseFilter reads the list filter from the request. A month without a
// year defaults the year to the current one; out-of-range values are
// dropped. Shortcut names override the individual fields.
func parseFilter(r *http.Request, now time.Time) query.Filter {
	get := func(key string) string {
		return strings.TrimSpace(r.FormValue(key))
	}

	switch get("shortcut") {
	case "this-month":
		return query.Filter{Month: int(now.Month()), Year: now.Year()}
	case "last-month":
		prev := now.AddDate(0, -1, 0)
		return query.Filter{Month: int(prev.Month()), Year: prev.Year()}
	case "this-year":
		return query.Filter{Year: now.Year()}
	case "clear":
		return query.Filter{}
	}

	var f query.Filter
	if v := get("month"); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			f.Month = m
		}
	}
	if v := get("year"); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y > 0 {
			f.Year = y
		}
	}
	if f.Month != 0 && f.Year == 0 {
		f.Year = now.Year()
	}
	if v := get("category"); v != "" {
		if c, err := core.NormalizeCategory(v); err == nil {
			f.Category = c
		} else {
			slog.WarnContext(r.Context(), "Ignoring unknown category filter", "category", v)
		}
	}
	return f
}

// streamQuery renders the active filter as the stream's query string, so a
// filter change reconnects the live view with a correctly scoped
// subscription.
func streamQuery(f query.Filter) string {
	v := url.Values{}
	if f.Month != 0 {
		v.Set("month", strconv.Itoa(f.Month))
	}
	if f.Year != 0 {
		v.Set("year", strconv.Itoa(f.Year))
	}
	if f.Category != "" {
		v.Set("category", f.Category.String())
	}
	return v.Encode()
}

// periodLabel names the filtered period for the empty state, e.g.
// "March 2024", "2024", or "".
func periodLabel(f query.Filter) string {
	switch {
	case f.Month != 0 && f.Year != 0:
		return time.Month(f.Month).String() + " " + strconv.Itoa(f.Year)
	case f.Year != 0:
		return strconv.Itoa(f.Year)
	default:
		return ""
	}
}

// recordErrorMessage translates validation errors into form messages.
func recordErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrEmptyName):
		return "Please enter a name"
	case errors.Is(err, core.ErrEmptyPrice):
		return "Please enter a price"
	case errors.Is(err, core.ErrCommaPrice):
		return "Please use a dot instead of a comma for decimals"
	case errors.Is(err, core.ErrNegativePrice):
		return "Price cannot be negative"
	case errors.Is(err, core.ErrInvalidPrice):
		return "Please enter a valid price"
	case errors.Is(err, core.ErrInvalidCategory):
		return "Please pick a valid category"
	default:
		return "Something went wrong. Please try again."
	}
}
