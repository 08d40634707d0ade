package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/powerpolicy/internal/api"
	"github.com/jask/powerpolicy/internal/fixture"
	"github.com/jask/powerpolicy/internal/session"
)

func newClient(t *testing.T, h http.Handler, tokens api.TokenSource) *api.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := api.New(tokens, api.Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func signedIn(t *testing.T, fx *fixture.Server, user string) *session.Memory {
	t.Helper()
	tok, err := fx.Token(user)
	require.NoError(t, err)
	s := session.NewMemory()
	s.Set(tok)
	return s
}

func TestNewRejectsRelativeBase(t *testing.T) {
	_, err := api.New(session.NewMemory(), api.Options{BaseURL: "/just/a/path"})
	require.Error(t, err)
	_, err = api.New(nil, api.Options{BaseURL: "http://localhost"})
	require.Error(t, err)
}

func TestCallSuccessDecodes(t *testing.T) {
	fx := fixture.New(fixture.Sample())
	c := newClient(t, fx.Handler(), signedIn(t, fx, "admin"))

	res := c.Call(context.Background(), api.ListPolicies())
	require.Equal(t, api.Success, res.Kind)
	policies, err := api.Decode[[]api.Policy](res)
	require.NoError(t, err)
	require.Len(t, policies, 8)

	res = c.Call(context.Background(), api.PolicyStatusSummary())
	require.Equal(t, api.Success, res.Kind)
	summary, err := api.Decode[api.StatusSummary](res)
	require.NoError(t, err)
	require.Equal(t, 8, summary.Total())
	require.Equal(t, []string{"active", "archived", "draft", "review"}, summary.Labels())
}

func TestUnauthorizedIgnoresBody(t *testing.T) {
	bodies := []string{
		``,
		`{"detail":"Could not validate credentials"}`,
		`[1,2,3]`,
		`{"id":7,"title":"looks like success"}`,
	}
	for _, body := range bodies {
		h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, body)
		})
		c := newClient(t, h, session.NewMemory())
		res := c.Call(context.Background(), api.GetPolicy(7))
		require.Equal(t, api.Unauthorized, res.Kind, "body %q", body)
		require.Empty(t, res.Message)
		require.Nil(t, res.Body)
	}
}

func TestFailureMessages(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"string detail", http.StatusNotFound, `{"detail":"Policy not found"}`, "Policy not found"},
		{"validation detail", http.StatusUnprocessableEntity,
			`{"detail":[{"loc":["path","id"],"msg":"value is not a valid integer"},{"msg":"second"}]}`,
			"value is not a valid integer; second"},
		{"message field", http.StatusConflict, `{"message":"already read"}`, "already read"},
		{"unparseable", http.StatusInternalServerError, `<html>oops</html>`, "Failed to fetch policy"},
		{"empty detail", http.StatusBadGateway, `{"detail":""}`, "Failed to fetch policy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			res := newClient(t, h, session.NewMemory()).Call(context.Background(), api.GetPolicy(1))
			require.Equal(t, api.Failure, res.Kind)
			require.Equal(t, tc.status, res.Status)
			require.Equal(t, tc.want, res.Message)
		})
	}

	t.Run("no fallback", func(t *testing.T) {
		h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
		res := newClient(t, h, session.NewMemory()).Call(context.Background(), api.Request{Method: http.MethodGet, Path: "/x"})
		require.Equal(t, api.Failure, res.Kind)
		require.Contains(t, res.Message, "418")
	})
}

func TestTransportErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := api.New(session.NewMemory(), api.Options{BaseURL: base, Timeout: time.Second})
	require.NoError(t, err)
	res := c.Call(context.Background(), api.ListPolicies())
	require.Equal(t, api.Failure, res.Kind)
	require.Equal(t, "Failed to fetch policies", res.Message)
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "GET /policies/")

	res = c.Call(context.Background(), api.Request{Path: "/health"})
	require.Equal(t, "Could not reach the server", res.Message)
}

func TestRequestShape(t *testing.T) {
	var got *http.Request
	var body []byte
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})
	s := session.NewMemory()
	s.Set("tok-123")
	c := newClient(t, h, s)

	res := c.Call(context.Background(), api.MarkNotificationRead(42))
	require.Equal(t, api.Success, res.Kind)
	require.Equal(t, http.MethodPut, got.Method)
	require.Equal(t, "/notifications/42/read", got.URL.Path)
	require.Equal(t, "Bearer tok-123", got.Header.Get("Authorization"))
	require.Equal(t, "application/json", got.Header.Get("Content-Type"))
	require.JSONEq(t, `{"read":true}`, string(body))

	res = c.Call(context.Background(), api.SearchPolicies("budget & travel"))
	require.Equal(t, api.Success, res.Kind)
	require.Equal(t, "/policies/search/", got.URL.Path)
	require.Equal(t, "budget & travel", got.URL.Query().Get("query"))

	s.Clear()
	c.Call(context.Background(), api.ListPolicies())
	require.Empty(t, got.Header.Get("Authorization"))
}

func TestBasePathIsPreserved(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
	}))
	defer srv.Close()

	c, err := api.New(session.NewMemory(), api.Options{BaseURL: srv.URL + "/api/v1/"})
	require.NoError(t, err)
	c.Call(context.Background(), api.AttestationStatusFor(2))
	require.Equal(t, "/api/v1/reports/attestation-status/2", path)
}

func TestDecodeEmptyAndNull(t *testing.T) {
	p, err := api.Decode[*api.Policy](api.Result{Kind: api.Success, Body: []byte(" ")})
	require.NoError(t, err)
	require.Nil(t, p)

	p, err = api.Decode[*api.Policy](api.Result{Kind: api.Success, Body: []byte("null")})
	require.NoError(t, err)
	require.Nil(t, p)

	_, err = api.Decode[*api.Policy](api.Result{Kind: api.Success, Body: []byte("{")})
	require.Error(t, err)

	_, err = api.Decode[*api.Policy](api.Result{Kind: api.Failure, Message: "x"})
	require.Error(t, err)
}

func TestRateLimitHonoursContext(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := httptest.NewServer(h)
	defer srv.Close()

	c, err := api.New(session.NewMemory(), api.Options{BaseURL: srv.URL, RateLimit: 0.001, Burst: 1})
	require.NoError(t, err)
	require.Equal(t, api.Success, c.Call(context.Background(), api.ListPolicies()).Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := c.Call(ctx, api.ListPolicies())
	require.Equal(t, api.Failure, res.Kind)
	require.Equal(t, "Failed to fetch policies", res.Message)
	require.Contains(t, res.Err.Error(), "rate limit")
}
