package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/session"
	"ledger/internal/storage/memory"
)

func quietLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError + 4, Output: io.Discard})
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	svc := ledger.NewService(memory.New(), ledger.WithLogger(quietLogger()))
	return NewServer(":0", svc, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

type client struct {
	t     *testing.T
	srv   *Server
	token string
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: c.token})
	}
	rec := httptest.NewRecorder()
	c.srv.Handler.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == session.CookieName {
			c.token = ck.Value
		}
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type listBody struct {
	Transactions []struct {
		ID        string      `json:"id"`
		Title     string      `json:"title"`
		Amount    json.Number `json:"amount"`
		SessionID string      `json:"session_id"`
		CreatedAt string      `json:"created_at"`
	} `json:"transactions"`
}

func TestSalaryRentScenario(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}

	rec := c.do(http.MethodPost, "/transactions", `{"title":"Salary","amount":1000,"type":"credit"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Body.String())
	require.True(t, session.Valid(c.token), "first POST issues a token")
	first := c.token

	ck := rec.Result().Cookies()[0]
	assert.Equal(t, "/", ck.Path)
	assert.Equal(t, 7*24*60*60, ck.MaxAge)
	assert.True(t, ck.HttpOnly)

	rec = c.do(http.MethodPost, "/transactions", `{"title":"Rent","amount":300,"type":"debit"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "an existing token is not reissued")
	assert.Equal(t, first, c.token)

	rec = c.do(http.MethodGet, "/transactions/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"summary":{"amount":700}}`, rec.Body.String())

	rec = c.do(http.MethodGet, "/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listBody](t, rec)
	require.Len(t, list.Transactions, 2)
	assert.Equal(t, "1000", list.Transactions[0].Amount.String())
	assert.Equal(t, "-300", list.Transactions[1].Amount.String())
	assert.Equal(t, first, list.Transactions[0].SessionID)
	assert.NotEmpty(t, list.Transactions[0].CreatedAt)

	rec = c.do(http.MethodGet, "/transactions/"+list.Transactions[1].ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Transaction struct {
			Title  string      `json:"title"`
			Amount json.Number `json:"amount"`
		} `json:"transaction"`
	}](t, rec)
	assert.Equal(t, "Rent", got.Transaction.Title)
	assert.Equal(t, "-300", got.Transaction.Amount.String())
}

func TestSessionGuard(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/transactions", "/transactions/", "/transactions/summary", "/transactions/" + uuid.NewString()} {
		for _, token := range []string{"", "not-a-uuid", strings.ToUpper(uuid.NewString())} {
			c := &client{t: t, srv: srv, token: token}
			rec := c.do(http.MethodGet, path, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s token=%q", path, token)
			assert.JSONEq(t, `{"error":"Unauthorized."}`, rec.Body.String())
		}
	}
}

func TestGetTransaction_InvalidIDIsValidationError(t *testing.T) {
	srv := newTestServer(t)

	for _, token := range []string{"", uuid.NewString()} {
		c := &client{t: t, srv: srv, token: token}
		rec := c.do(http.MethodGet, "/transactions/12345", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Validation error.","issues":[{"field":"id","message":"invalid uuid"}]}`, rec.Body.String())
	}
}

func TestGetTransaction_ForeignSessionIsNull(t *testing.T) {
	srv := newTestServer(t)
	owner := &client{t: t, srv: srv}
	require.Equal(t, http.StatusCreated, owner.do(http.MethodPost, "/transactions", `{"title":"Private","amount":5,"type":"credit"}`).Code)
	list := decode[listBody](t, owner.do(http.MethodGet, "/transactions", ""))
	require.Len(t, list.Transactions, 1)
	id := list.Transactions[0].ID

	other := &client{t: t, srv: srv, token: uuid.NewString()}
	rec := other.do(http.MethodGet, "/transactions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"transaction":null}`, rec.Body.String())

	rec = other.do(http.MethodGet, "/transactions", "")
	assert.JSONEq(t, `{"transactions":[]}`, rec.Body.String())

	rec = other.do(http.MethodGet, "/transactions/summary", "")
	assert.JSONEq(t, `{"summary":{"amount":0}}`, rec.Body.String())
}

func TestCreateTransaction_Validation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"empty object", `{}`, []string{"title", "amount", "type"}},
		{"empty body", ``, []string{"body"}},
		{"not an object", `[1,2]`, []string{"body"}},
		{"trailing data", `{"title":"a","amount":1,"type":"credit"} {}`, []string{"body"}},
		{"amount as string", `{"title":"a","amount":"10","type":"credit"}`, []string{"amount"}},
		{"zero amount", `{"title":"a","amount":0,"type":"credit"}`, []string{"amount"}},
		{"negative amount", `{"title":"a","amount":-5,"type":"debit"}`, []string{"amount"}},
		{"bad enum", `{"title":"a","amount":1,"type":"refund"}`, []string{"type"}},
		{"title not string", `{"title":42,"amount":1,"type":"credit"}`, []string{"title"}},
		{"blank title", `{"title":"  \u0007 ","amount":1,"type":"credit"}`, []string{"title"}},
		{"null fields", `{"title":null,"amount":null,"type":null}`, []string{"title", "amount", "type"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &client{t: t, srv: newTestServer(t)}
			req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			c.srv.Handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, rec.Result().Cookies(), "rejected requests do not mint a session")

			body := decode[errorResponse](t, rec)
			assert.Equal(t, "Validation error.", body.Error)
			var fields []string
			for _, is := range body.Issues {
				fields = append(fields, is.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}

func TestCreateTransaction_AcceptsTrailingSlashAndDecimals(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}

	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/transactions/", `{"title":"Coffee","amount":2.5,"type":"debit"}`).Code)
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/transactions", `{"title":"Refund","amount":1e1,"type":"credit"}`).Code)

	rec := c.do(http.MethodGet, "/transactions/summary", "")
	assert.JSONEq(t, `{"summary":{"amount":7.5}}`, rec.Body.String())

	rec = c.do(http.MethodGet, "/transactions/", "")
	assert.Len(t, decode[listBody](t, rec).Transactions, 2)
}

func TestCreateTransaction_MalformedTokenIsReplaced(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t), token: "tampered"}

	rec := c.do(http.MethodPost, "/transactions", `{"title":"a","amount":1,"type":"credit"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, session.Valid(c.token))
}

func TestCreateTransaction_RejectsNonJSON(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader("title=a&amount=1&type=credit"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestCreateTransaction_BodyTooLarge(t *testing.T) {
	srv := newTestServer(t)
	body := `{"title":"` + strings.Repeat("a", maxBodyBytes) + `","amount":1,"type":"credit"}`
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type brokenLedger struct{}

var errStoreDown = errors.New("database is locked")

func (brokenLedger) Create(context.Context, string, core.NewTransaction) error { return errStoreDown }
func (brokenLedger) List(context.Context, string) ([]core.Transaction, error) {
	return nil, errStoreDown
}
func (brokenLedger) GetByID(context.Context, string, uuid.UUID) (*core.Transaction, error) {
	return nil, errStoreDown
}
func (brokenLedger) Summary(context.Context, string) (core.Summary, error) {
	return core.Summary{}, errStoreDown
}

func TestStorageErrorsAre500(t *testing.T) {
	var logs bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelInfo, Format: log.FormatJSON, Output: &logs})
	srv := NewServer(":0", brokenLedger{}, WithLogger(logger))
	c := &client{t: t, srv: srv, token: uuid.NewString()}

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/transactions", ""},
		{http.MethodGet, "/transactions/" + uuid.NewString(), ""},
		{http.MethodGet, "/transactions/summary", ""},
		{http.MethodPost, "/transactions", `{"title":"a","amount":1,"type":"credit"}`},
	} {
		rec := c.do(tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tc.path)
		assert.JSONEq(t, `{"error":"Internal server error."}`, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "locked", "storage details stay server-side")
	}
	assert.Contains(t, logs.String(), "database is locked")
}

func TestRateLimitedPOST(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 1})
	srv := newTestServer(t, WithRateLimiter(limiter))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	c := &client{t: t, srv: srv}

	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/transactions", `{"title":"a","amount":1,"type":"credit"}`).Code)

	rec := c.do(http.MethodPost, "/transactions", `{"title":"b","amount":1,"type":"credit"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Too many requests."}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/transactions", "").Code, "reads are not limited")
}

func TestRejectedRequestsAreLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Format: log.FormatJSON, Output: &logs})
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 2})
	srv := newTestServer(t, WithLogger(logger), WithRateLimiter(limiter))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	c := &client{t: t, srv: srv}

	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/transactions", "").Code)
	assert.Contains(t, logs.String(), `"error_type":"auth_error"`)

	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/transactions", `{"title":"","amount":1,"type":"credit"}`).Code)
	assert.Contains(t, logs.String(), `"error_type":"validation_error"`)
	assert.Contains(t, logs.String(), `"operation":"create"`)

	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/transactions", `{"title":"a","amount":1,"type":"credit"}`).Code)
	assert.Contains(t, logs.String(), `"component":"session"`)

	assert.Equal(t, http.StatusTooManyRequests, c.do(http.MethodPost, "/transactions", `{"title":"b","amount":1,"type":"credit"}`).Code)
	assert.Contains(t, logs.String(), `"component":"rate_limit"`)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthAndReadiness(t *testing.T) {
	srv := newTestServer(t, WithReadiness(stubPinger{}))
	c := &client{t: t, srv: srv}

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/readyz", "").Code)

	rec := c.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_http_requests_total")

	down := &client{t: t, srv: newTestServer(t, WithReadiness(stubPinger{err: errors.New("closed")}))}
	assert.Equal(t, http.StatusServiceUnavailable, down.do(http.MethodGet, "/readyz", "").Code)
}

func TestResponsesCarrySecurityHeaders(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}

	rec := c.do(http.MethodGet, "/healthz", "")

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMethodNotAllowed(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t), token: uuid.NewString()}

	rec := c.do(http.MethodDelete, "/transactions/"+uuid.NewString(), "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
