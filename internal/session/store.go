// Package session holds the bearer token that proves the user's identity to
// the Power Policy API.
//
// The store never inspects or validates the token. An expired or revoked
// token is only discovered when the server answers 401, at which point the
// caller clears the store.
package session

import (
	"errors"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession is returned by helpers that require a stored token.
var ErrNoSession = errors.New("not signed in")

// Store is the process-wide session holder shared by every screen.
type Store interface {
	Get() (string, bool)
	Set(token string)
	Clear()
}

// Memory keeps the token in process memory only.
type Memory struct {
	mu    sync.RWMutex
	token string
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Get() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// Set replaces the token. A blank token is the same as Clear.
func (m *Memory) Set(token string) {
	m.mu.Lock()
	m.token = strings.TrimSpace(token)
	m.mu.Unlock()
}

func (m *Memory) Clear() { m.Set("") }

// Subject returns the unverified "sub" claim when the token is a JWT, or an
// empty string otherwise. It is for display only.
func Subject(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// Who reports the subject of the token held by s.
func Who(s Store) (string, error) {
	tok, ok := s.Get()
	if !ok {
		return "", ErrNoSession
	}
	if sub := Subject(tok); sub != "" {
		return sub, nil
	}
	return "(opaque token)", nil
}
