package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masraf/internal/live"
	"masraf/internal/services"
	"masraf/internal/session"
	"masraf/internal/store/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := memory.New()
	sessions := session.NewManager(st, st, st, time.Hour, 24*time.Hour)
	hub := live.NewHub(st)
	records := services.NewRecordService(st, hub, nil)
	srv := NewServer(":0", sessions, records, st, hub, false)
	t.Cleanup(func() {
		hub.Close()
	})
	return srv
}

func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func postForm(srv *Server, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return do(srv, req)
}

func get(srv *Server, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return do(srv, req)
}

// register creates an account and returns the session cookie.
func register(t *testing.T, srv *Server, email string) *http.Cookie {
	t.Helper()
	rec := postForm(srv, "/register", url.Values{
		"email":    {email},
		"password": {"secret-pw"},
		"name":     {"Test User"},
	})
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie set on register")
	return nil
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv, "/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestUnauthenticatedHTMXRequestGetsRedirectHeader(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("HX-Request", "true")
	rec := do(srv, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("HX-Redirect"))
}

func TestRegisterAndIndex(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")

	rec := get(srv, "/", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Test User")
	assert.Contains(t, rec.Body.String(), "No expenses yet")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "alice@example.com")

	rec := postForm(srv, "/register", url.Values{
		"email":    {"alice@example.com"},
		"password": {"another-pw"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "An account with this email already exists")
}

func TestLoginErrorMessages(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "alice@example.com")

	tests := []struct {
		name    string
		email   string
		secret  string
		message string
	}{
		{"unknown email", "nobody@example.com", "secret-pw", "No account found with this email"},
		{"wrong password", "alice@example.com", "wrong", "Incorrect password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postForm(srv, "/login", url.Values{
				"email":    {tt.email},
				"password": {tt.secret},
			})
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
		})
	}
}

func TestLoginRememberSetsDurableCookie(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "alice@example.com")

	rec := postForm(srv, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"secret-pw"},
		"remember": {"1"},
	})
	require.Equal(t, http.StatusFound, rec.Code)

	var sessionMaxAge int
	var persistence string
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case sessionCookieName:
			sessionMaxAge = c.MaxAge
		case session.PersistenceFlagName:
			persistence = c.Value
		}
	}
	assert.Positive(t, sessionMaxAge, "durable session cookie must outlive the browser")
	assert.Equal(t, string(session.Durable), persistence)
}

func TestLoginWithoutRememberIsSessionScoped(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "alice@example.com")

	rec := postForm(srv, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"secret-pw"},
	})
	require.Equal(t, http.StatusFound, rec.Code)

	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			assert.Zero(t, c.MaxAge)
		}
	}
}

func TestLogout(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")

	rec := postForm(srv, "/logout", url.Values{}, cookie)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = get(srv, "/", cookie)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestCreateRecord(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")

	rec := postForm(srv, "/records", url.Values{
		"name":     {"coffee"},
		"price":    {"4.50"},
		"category": {"Food"},
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("HX-Trigger"), "record:created")

	list := get(srv, "/records", cookie)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), "coffee")
	assert.Contains(t, list.Body.String(), "4.50")
}

func TestCreateRecordValidationMessages(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")

	tests := []struct {
		name    string
		form    url.Values
		message string
	}{
		{
			"comma price",
			url.Values{"name": {"coffee"}, "price": {"4,50"}, "category": {"Food"}},
			"Please use a dot instead of a comma for decimals",
		},
		{
			"missing name",
			url.Values{"name": {"  "}, "price": {"4.50"}, "category": {"Food"}},
			"Please enter a name",
		},
		{
			"negative price",
			url.Values{"name": {"coffee"}, "price": {"-1"}, "category": {"Food"}},
			"Price cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postForm(srv, "/records", tt.form, cookie)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
			assert.Empty(t, rec.Header().Get("HX-Trigger"))
		})
	}
}

func TestCreateRecordDefaultsCategory(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")

	rec := postForm(srv, "/records", url.Values{
		"name":  {"mystery"},
		"price": {"1"},
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	list := get(srv, "/records", cookie)
	assert.Contains(t, list.Body.String(), "Other")
}

func TestListEmptyStateNamesPeriod(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")

	rec := get(srv, "/records?month=3&year=1999", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No expenses for March 1999")
}

func TestRecordsAreScopedToOwner(t *testing.T) {
	srv := newTestServer(t)
	alice := register(t, srv, "alice@example.com")
	bob := register(t, srv, "bob@example.com")

	rec := postForm(srv, "/records", url.Values{
		"name":     {"alice-only"},
		"price":    {"9.99"},
		"category": {"Food"},
	}, alice)
	require.Equal(t, http.StatusOK, rec.Code)

	bobList := get(srv, "/records", bob)
	assert.NotContains(t, bobList.Body.String(), "alice-only")
}

var recordIDPattern = regexp.MustCompile(`record-([0-9a-f-]{36})`)

func createRecord(t *testing.T, srv *Server, cookie *http.Cookie, name, price, category string) string {
	t.Helper()
	rec := postForm(srv, "/records", url.Values{
		"name":     {name},
		"price":    {price},
		"category": {category},
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list := get(srv, "/records", cookie)
	m := recordIDPattern.FindStringSubmatch(list.Body.String())
	require.NotNil(t, m, "created record not present in list")
	return m[1]
}

func TestEditFlow(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")
	id := createRecord(t, srv, cookie, "coffee", "4.50", "Food")

	// Entering edit mode shows the frozen form values.
	rec := postForm(srv, "/records/"+id+"/edit", url.Values{}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="coffee"`)
	assert.Contains(t, rec.Body.String(), `value="4.50"`)

	// Saving a change rewrites the record and leaves edit mode.
	rec = postForm(srv, "/records/"+id+"/save", url.Values{
		"name":     {"tea"},
		"price":    {"3.00"},
		"category": {"Food"},
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("HX-Trigger"), "record:updated")
	assert.Contains(t, rec.Body.String(), "tea")
	assert.NotContains(t, rec.Body.String(), `value="tea"`)
}

func TestSaveWithoutChangeSkipsWrite(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")
	id := createRecord(t, srv, cookie, "coffee", "4.50", "Food")

	rec := postForm(srv, "/records/"+id+"/edit", url.Values{}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postForm(srv, "/records/"+id+"/save", url.Values{
		"name":     {"coffee"},
		"price":    {"4.50"},
		"category": {"Food"},
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("HX-Trigger"), "unchanged save must not announce an update")
	assert.NotContains(t, rec.Body.String(), `value="coffee"`, "edit mode should be closed")
}

func TestCancelEditDiscardsChanges(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")
	id := createRecord(t, srv, cookie, "coffee", "4.50", "Food")

	postForm(srv, "/records/"+id+"/edit", url.Values{}, cookie)
	rec := postForm(srv, "/records/"+id+"/cancel", url.Values{}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	list := get(srv, "/records", cookie)
	assert.Contains(t, list.Body.String(), "coffee")
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")
	id := createRecord(t, srv, cookie, "coffee", "4.50", "Food")

	// First request only arms the confirmation.
	rec := postForm(srv, "/records/"+id+"/delete", url.Values{}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Delete this expense?")
	assert.Contains(t, rec.Body.String(), "coffee")
	assert.Empty(t, rec.Header().Get("HX-Trigger"))

	// Second request deletes.
	rec = postForm(srv, "/records/"+id+"/delete", url.Values{}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("HX-Trigger"), "record:deleted")
	assert.NotContains(t, rec.Body.String(), "coffee")
}

func TestDeleteCancelDisarms(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")
	id := createRecord(t, srv, cookie, "coffee", "4.50", "Food")

	postForm(srv, "/records/"+id+"/delete", url.Values{}, cookie)
	rec := postForm(srv, "/records/"+id+"/delete/cancel", url.Values{}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Delete this expense?")

	// The next delete must arm again rather than deleting outright.
	rec = postForm(srv, "/records/"+id+"/delete", url.Values{}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Delete this expense?")
	assert.Contains(t, rec.Body.String(), "coffee")
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "ok", string(body))

	rec = get(srv, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv, "/login")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < 60; i++ {
		assert.True(t, rl.allow("1.2.3.4"))
	}
	assert.False(t, rl.allow("1.2.3.4"))
	assert.True(t, rl.allow("5.6.7.8"), "limits are per client")
}
