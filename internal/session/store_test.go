package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestMemoryLifecycle(t *testing.T) {
	m := NewMemory()
	_, ok := m.Get()
	require.False(t, ok)

	m.Set("  abc  ")
	tok, ok := m.Get()
	require.True(t, ok)
	require.Equal(t, "abc", tok)

	m.Clear()
	tok, ok = m.Get()
	require.False(t, ok)
	require.Empty(t, tok)

	m.Set("x")
	m.Set("   ")
	_, ok = m.Get()
	require.False(t, ok, "blank token must read as absent")
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); m.Set("tok") }()
		go func() { defer wg.Done(); _, _ = m.Get() }()
		go func() { defer wg.Done(); m.Clear() }()
	}
	wg.Wait()
}

func TestFilePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	_, ok := f.Get()
	require.False(t, ok)

	f.Set("secret-token")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "secret-token")

	reopened, err := OpenFile(path, nil)
	require.NoError(t, err)
	tok, ok := reopened.Get()
	require.True(t, ok)
	require.Equal(t, "secret-token", tok)

	reopened.Clear()
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	again, err := OpenFile(path, nil)
	require.NoError(t, err)
	_, ok = again.Get()
	require.False(t, ok)
}

func TestOpenFileDiscardsUnreadableFile(t *testing.T) {
	for name, content := range map[string]string{
		"not json":    "{not json",
		"short":       `{"token":"AAAA"}`,
		"not base64":  `{"token":"%%%"}`,
		"wrong bytes": `{"token":"` + strings.Repeat("A", 64) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			f, err := OpenFile(path, nil)
			require.NoError(t, err)
			_, ok := f.Get()
			require.False(t, ok)
			_, err = os.Stat(path)
			require.True(t, os.IsNotExist(err), "unreadable file is removed")

			f.Set("fresh")
			reopened, err := OpenFile(path, nil)
			require.NoError(t, err)
			tok, _ := reopened.Get()
			require.Equal(t, "fresh", tok)
		})
	}
}

func TestOpenFileSealedForAnotherUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	t.Setenv("USER", "amara")
	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	f.Set("amara-token")

	t.Setenv("USER", "bongani")
	other, err := OpenFile(path, nil)
	require.NoError(t, err)
	_, ok := other.Get()
	require.False(t, ok)
}

func TestOpenFileRequiresPath(t *testing.T) {
	_, err := OpenFile("", nil)
	require.Error(t, err)
}

func TestSubject(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice", "id": 3}).
		SignedString([]byte("any-key"))
	require.NoError(t, err)

	require.Equal(t, "alice", Subject(signed))
	require.Empty(t, Subject("opaque"))
	require.Empty(t, Subject(""))
}

func TestWho(t *testing.T) {
	m := NewMemory()
	_, err := Who(m)
	require.ErrorIs(t, err, ErrNoSession)

	m.Set("opaque")
	who, err := Who(m)
	require.NoError(t, err)
	require.Equal(t, "(opaque token)", who)
}
