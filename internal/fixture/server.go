// Package fixture is an in-memory Power Policy API. It backs the demo
// command and the client, controller and TUI tests.
package fixture

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jask/powerpolicy/internal/api"
)

// Route names used by Hits, Fail and Respond.
const (
	RouteLogin         = "login"
	RoutePolicies      = "policies"
	RouteSearch        = "search"
	RoutePolicy        = "policy"
	RouteNotifications = "notifications"
	RouteMarkRead      = "mark-read"
	RouteSummary       = "summary"
	RouteAttestation   = "attestation"
)

var reportRoles = []string{"Admin", "Editor", "Reviewer"}

type canned struct {
	status int
	body   string
}

// Server serves a Dataset over HTTP.
type Server struct {
	mu      sync.Mutex
	data    Dataset
	key     []byte
	ttl     time.Duration
	hits    map[string]int
	canned  map[string]canned
	router  *mux.Router
	handler http.Handler
	now     func() time.Time
}

type Option func(*Server)

// WithLogger routes the access log to log at info level.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		s.handler = handlers.LoggingHandler(zap.NewStdLog(log).Writer(), s.router)
	}
}

// WithTokenTTL sets how long issued tokens stay valid.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.ttl = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(data Dataset, opts ...Option) *Server {
	s := &Server{
		data:   data,
		key:    []byte("powerpolicy-fixture-signing-key"),
		ttl:    30 * time.Minute,
		hits:   map[string]int{},
		canned: map[string]canned{},
		router: mux.NewRouter(),
		now:    time.Now,
	}
	s.routes()
	s.handler = handlers.LoggingHandler(io.Discard, s.router)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/auth/token", s.track(RouteLogin, s.login)).Methods(http.MethodPost)
	r.HandleFunc("/policies/", s.authed(RoutePolicies, s.listPolicies)).Methods(http.MethodGet)
	r.HandleFunc("/policies/search/", s.authed(RouteSearch, s.searchPolicies)).Methods(http.MethodGet)
	r.HandleFunc("/policies/{id}", s.authed(RoutePolicy, s.getPolicy)).Methods(http.MethodGet)
	r.HandleFunc("/notifications/me/", s.authed(RouteNotifications, s.myNotifications)).Methods(http.MethodGet)
	r.HandleFunc("/notifications/{id}/read", s.authed(RouteMarkRead, s.markRead)).Methods(http.MethodPut)
	r.HandleFunc("/reports/policy-status-summary", s.authed(RouteSummary, s.reporter(s.statusSummary))).Methods(http.MethodGet)
	r.HandleFunc("/reports/attestation-status/{id}", s.authed(RouteAttestation, s.reporter(s.attestationStatus))).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
}

// Hits returns how many requests reached route.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// TotalHits counts requests across every route.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.hits {
		n += h
	}
	return n
}

// Fail makes route answer status with a FastAPI style detail until Reset.
func (s *Server) Fail(route string, status int, detail string) {
	body, _ := json.Marshal(map[string]string{"detail": detail})
	s.Respond(route, status, string(body))
}

// Respond makes route answer with a fixed status and raw body until Reset.
// Authentication is still enforced first.
func (s *Server) Respond(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canned[route] = canned{status: status, body: body}
}

func (s *Server) Reset(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.canned, route)
}

// Notification returns the stored notification with id.
func (s *Server) Notification(id int64) (api.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.data.Notifications {
		if n.ID == id {
			return n, true
		}
	}
	return api.Notification{}, false
}

// Token issues a bearer token for username without checking a password.
func (s *Server) Token(username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userByName(username)
	if !ok {
		return "", fmt.Errorf("unknown user %q", username)
	}
	return s.issue(u)
}

func (s *Server) issue(u User) (string, error) {
	claims := jwt.MapClaims{
		"sub": u.Username,
		"id":  u.ID,
		"exp": jwt.NewNumericDate(s.now().Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *Server) track(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[route]++
		s.mu.Unlock()
		next(w, r)
	}
}

// authed counts the hit, enforces the bearer token and then serves either
// the canned response for route or next.
func (s *Server) authed(route string, next func(http.ResponseWriter, *http.Request, User)) http.HandlerFunc {
	return s.track(route, func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.authenticate(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		if c, ok := s.cannedFor(route); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(c.status)
			_, _ = io.WriteString(w, c.body)
			return
		}
		next(w, r, u)
	})
}

func (s *Server) reporter(next func(http.ResponseWriter, *http.Request, User)) func(http.ResponseWriter, *http.Request, User) {
	return func(w http.ResponseWriter, r *http.Request, u User) {
		for _, role := range u.Roles {
			for _, allowed := range reportRoles {
				if role == allowed {
					next(w, r, u)
					return
				}
			}
		}
		writeDetail(w, http.StatusForbidden, "Not authorized to view this report")
	}
}

func (s *Server) cannedFor(route string) (canned, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.canned[route]
	return c, ok
}

func (s *Server) authenticate(r *http.Request) (User, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return User{}, false
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return User{}, false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return User{}, false
	}
	id, ok := claims["id"].(float64)
	if !ok {
		return User{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.data.Users {
		if u.ID == int64(id) {
			return u, true
		}
	}
	return User{}, false
}

func (s *Server) userByName(name string) (User, bool) {
	for _, u := range s.data.Users {
		if u.Username == name {
			return u, true
		}
	}
	return User{}, false
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed form body")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		writeValidation(w, "body", "field required")
		return
	}

	s.mu.Lock()
	u, ok := s.userByName(username)
	s.mu.Unlock()
	if !ok || u.Password != password {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	if c, ok := s.cannedFor(RouteLogin); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(c.status)
		_, _ = io.WriteString(w, c.body)
		return
	}
	s.mu.Lock()
	tok, err := s.issue(u)
	s.mu.Unlock()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": tok, "token_type": "bearer"})
}

func (s *Server) listPolicies(w http.ResponseWriter, _ *http.Request, _ User) {
	s.mu.Lock()
	out := append([]api.Policy(nil), s.data.Policies...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) searchPolicies(w http.ResponseWriter, r *http.Request, _ User) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("query")))
	if q == "" {
		writeDetail(w, http.StatusBadRequest, "Search query cannot be empty")
		return
	}
	s.mu.Lock()
	out := []api.Policy{}
	for _, p := range s.data.Policies {
		if strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Description), q) {
			out = append(out, p)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request, _ User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.data.Policies {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Policy not found")
}

func (s *Server) myNotifications(w http.ResponseWriter, _ *http.Request, u User) {
	s.mu.Lock()
	out := []api.Notification{}
	for _, n := range s.data.Notifications {
		if n.UserID == u.ID {
			out = append(out, n)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request, u User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var upd api.ReadUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeValidation(w, "body", "field required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.data.Notifications {
		if n.ID != id {
			continue
		}
		if n.UserID != u.ID {
			writeDetail(w, http.StatusForbidden, "Not authorized to update this notification")
			return
		}
		s.data.Notifications[i].Read = upd.Read
		writeJSON(w, http.StatusOK, s.data.Notifications[i])
		return
	}
	writeDetail(w, http.StatusNotFound, "Notification not found")
}

func (s *Server) statusSummary(w http.ResponseWriter, _ *http.Request, _ User) {
	s.mu.Lock()
	out := api.StatusSummary{}
	for _, p := range s.data.Policies {
		out[p.Status]++
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) attestationStatus(w http.ResponseWriter, r *http.Request, _ User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var version *api.PolicyVersion
	for i := range s.data.Versions {
		if s.data.Versions[i].ID == id {
			version = &s.data.Versions[i]
			break
		}
	}
	if version == nil {
		writeDetail(w, http.StatusNotFound, "Policy version not found")
		return
	}

	out := api.AttestationStatus{
		PolicyVersionID:  id,
		PolicyTitle:      "N/A",
		VersionNumber:    version.VersionNumber,
		TotalUsers:       len(s.data.Users),
		AttestedUsers:    []api.AttestedUser{},
		NonAttestedUsers: []api.PendingUser{},
	}
	for _, p := range s.data.Policies {
		if p.ID == version.PolicyID {
			out.PolicyTitle = p.Title
		}
	}

	attested := map[int64]time.Time{}
	for _, a := range s.data.Attestations {
		if a.VersionID == id {
			attested[a.UserID] = a.At
		}
	}
	users := append([]User(nil), s.data.Users...)
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	for _, u := range users {
		if at, ok := attested[u.ID]; ok {
			out.AttestedUsers = append(out.AttestedUsers, api.AttestedUser{Username: u.Username, Email: u.Email, AttestedAt: api.Timestamp{Time: at}})
		} else {
			out.NonAttestedUsers = append(out.NonAttestedUsers, api.PendingUser{Username: u.Username, Email: u.Email})
		}
	}
	out.AttestedCount = len(out.AttestedUsers)
	out.NonAttestedCount = len(out.NonAttestedUsers)
	writeJSON(w, http.StatusOK, out)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeValidation(w, "path", "value is not a valid integer")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidation(w http.ResponseWriter, loc, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []string{loc}, "msg": msg, "type": "value_error"}},
	})
}
