package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// File is a Store mirrored to a per-user file (0600) so the CLI login and the
// TUI share one session. The token is sealed with AES-GCM; this keeps it out
// of plain text but is not a replacement for an OS keychain.
type File struct {
	mem  Memory
	path string
	log  *zap.Logger

	// serialises the memory update and the disk write so the file never lags
	// behind a newer Set.
	mu sync.Mutex
}

type sessionFile struct {
	Token string `json:"token"` // base64(nonce|ciphertext)
}

// OpenFile loads any token already stored at path. A file that cannot be
// read or decrypted is discarded and the store starts signed out.
func OpenFile(path string, log *zap.Logger) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("session path required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	f := &File{path: path, log: log}
	tok, err := readToken(path)
	if err != nil {
		log.Warn("discarding unreadable session", zap.String("path", path), zap.Error(err))
		f.remove()
		return f, nil
	}
	f.mem.Set(tok)
	return f, nil
}

func (f *File) Get() (string, bool) { return f.mem.Get() }

func (f *File) Set(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mem.Set(token)
	tok, ok := f.mem.Get()
	if !ok {
		f.remove()
		return
	}
	if err := writeToken(f.path, tok); err != nil {
		f.log.Warn("persist session", zap.String("path", f.path), zap.Error(err))
	}
}

func (f *File) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mem.Clear()
	f.remove()
}

func (f *File) remove() {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		f.log.Warn("remove session file", zap.String("path", f.path), zap.Error(err))
	}
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return "", err
	}
	if sf.Token == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sf.Token)
	if err != nil {
		return "", err
	}
	pt, err := decrypt(raw)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func writeToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	ct, err := encrypt([]byte(token))
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(sessionFile{Token: base64.StdEncoding.EncodeToString(ct)}, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func masterKey() []byte {
	base := fmt.Sprintf("powerpolicy-%s-%s", runtime.GOOS, os.Getenv("USER"))
	sum := sha256.Sum256([]byte(base))
	return sum[:]
}

func sealer() (cipher.AEAD, error) {
	block, err := aes.NewCipher(masterKey())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func encrypt(plain []byte) ([]byte, error) {
	gcm, err := sealer()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := sealer()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
