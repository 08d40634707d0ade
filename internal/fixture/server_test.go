package fixture

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/powerpolicy/internal/api"
)

func get(t *testing.T, srv *httptest.Server, token, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, []byte(buf.String())
}

func TestSampleDataset(t *testing.T) {
	d := Sample()
	require.Len(t, d.Users, 10)

	var remote api.Policy
	for _, p := range d.Policies {
		if p.ID == 7 {
			remote = p
		}
	}
	require.Equal(t, "Remote Work", remote.Title)
	require.Equal(t, "active", remote.Status)
	require.NotNil(t, remote.CurrentVersion)
	require.Equal(t, int64(2), remote.CurrentVersion.ID)
	require.Equal(t, 2, remote.CurrentVersion.VersionNumber)
	require.Equal(t, "2024-01-01", remote.CurrentVersion.EffectiveDate.Format("2006-01-02", time.UTC))
}

func TestLoginIssuesToken(t *testing.T) {
	fx := New(Sample())
	srv := httptest.NewServer(fx.Handler())
	defer srv.Close()

	resp, err := srv.Client().PostForm(srv.URL+"/auth/token", url.Values{
		"username": {"admin"}, "password": {"admin"}, "grant_type": {"password"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	require.Equal(t, "bearer", tok.TokenType)

	r, _ := get(t, srv, tok.AccessToken, "/policies/")
	require.Equal(t, http.StatusOK, r.StatusCode)
	require.Equal(t, 1, fx.Hits(RouteLogin))
	require.Equal(t, 1, fx.Hits(RoutePolicies))
}

func TestRejectsBadCredentials(t *testing.T) {
	fx := New(Sample())
	srv := httptest.NewServer(fx.Handler())
	defer srv.Close()

	resp, err := srv.Client().PostForm(srv.URL+"/auth/token", url.Values{"username": {"admin"}, "password": {"nope"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	r, body := get(t, srv, "garbage", "/policies/")
	require.Equal(t, http.StatusUnauthorized, r.StatusCode)
	require.JSONEq(t, `{"detail":"Could not validate credentials"}`, string(body))
}

func TestExpiredTokenIsRejected(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := New(Sample(), WithClock(func() time.Time { return now }), WithTokenTTL(time.Minute))
	srv := httptest.NewServer(fx.Handler())
	defer srv.Close()

	tok, err := fx.Token("admin")
	require.NoError(t, err)
	r, _ := get(t, srv, tok, "/notifications/me/")
	require.Equal(t, http.StatusOK, r.StatusCode)

	now = now.Add(time.Hour)
	r, _ = get(t, srv, tok, "/notifications/me/")
	require.Equal(t, http.StatusUnauthorized, r.StatusCode)
}

func TestSearchAndDetailErrors(t *testing.T) {
	fx := New(Sample())
	srv := httptest.NewServer(fx.Handler())
	defer srv.Close()
	tok, err := fx.Token("reader")
	require.NoError(t, err)

	r, body := get(t, srv, tok, "/policies/search/?query=budget")
	require.Equal(t, http.StatusOK, r.StatusCode)
	var found []api.Policy
	require.NoError(t, json.Unmarshal(body, &found))
	require.NotEmpty(t, found)
	for _, p := range found {
		require.Contains(t, strings.ToLower(p.Title+" "+p.Description), "budget")
	}

	r, body = get(t, srv, tok, "/policies/search/?query=")
	require.Equal(t, http.StatusBadRequest, r.StatusCode)
	require.Contains(t, string(body), "Search query cannot be empty")

	r, body = get(t, srv, tok, "/policies/999")
	require.Equal(t, http.StatusNotFound, r.StatusCode)
	require.Contains(t, string(body), "Policy not found")

	r, _ = get(t, srv, tok, "/policies/abc")
	require.Equal(t, http.StatusUnprocessableEntity, r.StatusCode)
}

func TestReportsRequireRole(t *testing.T) {
	fx := New(Sample())
	srv := httptest.NewServer(fx.Handler())
	defer srv.Close()

	reader, err := fx.Token("reader")
	require.NoError(t, err)
	r, _ := get(t, srv, reader, "/reports/policy-status-summary")
	require.Equal(t, http.StatusForbidden, r.StatusCode)

	admin, err := fx.Token("admin")
	require.NoError(t, err)
	r, body := get(t, srv, admin, "/reports/attestation-status/2")
	require.Equal(t, http.StatusOK, r.StatusCode)
	var status api.AttestationStatus
	require.NoError(t, json.Unmarshal(body, &status))
	require.Equal(t, "Remote Work", status.PolicyTitle)
	require.Equal(t, 10, status.TotalUsers)
	require.Equal(t, 7, status.AttestedCount)
	require.Equal(t, 3, status.NonAttestedCount)
	require.Empty(t, status.Discrepancies())

	r, _ = get(t, srv, admin, "/reports/attestation-status/404")
	require.Equal(t, http.StatusNotFound, r.StatusCode)
}

func TestMarkReadChecksOwnership(t *testing.T) {
	d := Dataset{
		Users: []User{{ID: 1, Username: "a", Password: "a"}, {ID: 2, Username: "b", Password: "b"}},
		Notifications: []api.Notification{
			{ID: 10, UserID: 1, Message: "mine"},
			{ID: 11, UserID: 2, Message: "theirs"},
		},
	}
	fx := New(d)
	srv := httptest.NewServer(fx.Handler())
	defer srv.Close()
	tok, err := fx.Token("a")
	require.NoError(t, err)

	put := func(id string) int {
		req, err := http.NewRequest(http.MethodPut, srv.URL+"/notifications/"+id+"/read", strings.NewReader(`{"read":true}`))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusOK, put("10"))
	n, ok := fx.Notification(10)
	require.True(t, ok)
	require.True(t, n.Read)

	require.Equal(t, http.StatusForbidden, put("11"))
	require.Equal(t, http.StatusNotFound, put("12"))
}

func TestCannedResponses(t *testing.T) {
	fx := New(Sample())
	srv := httptest.NewServer(fx.Handler())
	defer srv.Close()
	tok, err := fx.Token("admin")
	require.NoError(t, err)

	fx.Fail(RouteSummary, http.StatusInternalServerError, "database unavailable")
	r, body := get(t, srv, tok, "/reports/policy-status-summary")
	require.Equal(t, http.StatusInternalServerError, r.StatusCode)
	require.Contains(t, string(body), "database unavailable")

	r, _ = get(t, srv, "", "/reports/policy-status-summary")
	require.Equal(t, http.StatusUnauthorized, r.StatusCode, "auth is checked before canned responses")

	fx.Reset(RouteSummary)
	r, _ = get(t, srv, tok, "/reports/policy-status-summary")
	require.Equal(t, http.StatusOK, r.StatusCode)
	require.Equal(t, 3, fx.Hits(RouteSummary))
	require.Equal(t, 3, fx.TotalHits())
}
