// Package secretstore holds the machine-specific key used to seal short
// secrets (stream keys) at rest, independent of any user password.
package secretstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ScopeCreep-zip/spiritstream/internal/corebus"
)

const (
	// Prefix marks a field-sealed value.
	Prefix   = "ENC::"
	keyLen   = 32
	nonceLen = 12
	fileName = ".stream_key"
)

// Store holds (or lazily creates) the machine key and seals/opens short
// secrets with it. The zero value is not usable; use New.
type Store struct {
	mu     sync.Mutex
	path   string
	cached []byte
}

// New returns a Store rooted at appDataDir. The key file is created lazily
// on the first Seal (or Open of a well-formed sealed value), not at
// construction time.
func New(appDataDir string) *Store {
	return &Store{path: filepath.Join(appDataDir, fileName)}
}

// IsSealed reports whether s begins with the ENC:: prefix.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, Prefix)
}

// Seal returns "ENC::" followed by base64(nonce || AES-256-GCM(plaintext)).
func (s *Store) Seal(plaintext []byte) (string, error) {
	key, err := s.machineKey()
	if err != nil {
		return "", corebus.New("secretstore.Seal", corebus.KindIO, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", corebus.New("secretstore.Seal", corebus.KindAuthFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", corebus.New("secretstore.Seal", corebus.KindAuthFailed, err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", corebus.New("secretstore.Seal", corebus.KindIO, err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	combined := append(append([]byte{}, nonce...), sealed...)
	return Prefix + base64.StdEncoding.EncodeToString(combined), nil
}

// Open is the inverse of Seal. Errors are always KindAuthFailed — malformed,
// truncated, and GCM-auth-failure are deliberately undifferentiated so the
// failure carries no oracle information.
func (s *Store) Open(sealed string) ([]byte, error) {
	const op = "secretstore.Open"
	if !IsSealed(sealed) {
		return nil, corebus.Newf(op, corebus.KindAuthFailed, "malformed: missing %s prefix", Prefix)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, Prefix))
	if err != nil {
		return nil, corebus.New(op, corebus.KindAuthFailed, err)
	}
	if len(raw) < nonceLen {
		return nil, corebus.Newf(op, corebus.KindAuthFailed, "truncated: %d bytes", len(raw))
	}
	key, err := s.machineKey()
	if err != nil {
		return nil, corebus.New(op, corebus.KindAuthFailed, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, corebus.New(op, corebus.KindAuthFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, corebus.New(op, corebus.KindAuthFailed, err)
	}
	nonce, ciphertext := raw[:nonceLen], raw[nonceLen:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, corebus.New(op, corebus.KindAuthFailed, fmt.Errorf("gcm auth failed"))
	}
	return plaintext, nil
}

// machineKey returns the cached key, reading or creating the key file as
// needed. The file is re-permissioned to 0600 if found relaxed.
func (s *Store) machineKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if len(data) != keyLen {
			return nil, fmt.Errorf("machine key file has wrong length (%d)", len(data))
		}
		if err := enforcePermissions(s.path); err != nil {
			return nil, err
		}
		s.cached = data
		return s.cached, nil
	case os.IsNotExist(err):
		key := make([]byte, keyLen)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		if err := writeKeyFile(s.path, key); err != nil {
			return nil, err
		}
		s.cached = key
		return s.cached, nil
	default:
		return nil, err
	}
}

// RotateKeys re-seals the given stream keys under a freshly generated
// machine key. It is a bulk, explicit operation — never run on the hot
// streaming path. Every ENC::-prefixed key is opened with the OLD key before
// the key file is replaced; values without the prefix are taken as
// plaintext. All of them are then sealed with the new key and returned in
// input order. Callers supply the load/save glue since the store has no
// notion of the profile repository.
func (s *Store) RotateKeys(keys []string) (newKeys []string, err error) {
	opened := make([][]byte, len(keys))
	for i, k := range keys {
		if !IsSealed(k) {
			opened[i] = []byte(k)
			continue
		}
		plain, err := s.Open(k)
		if err != nil {
			return nil, err
		}
		opened[i] = plain
	}

	s.mu.Lock()
	s.cached = nil
	freshKey := make([]byte, keyLen)
	if _, err := rand.Read(freshKey); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := writeKeyFile(s.path, freshKey); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.cached = freshKey
	s.mu.Unlock()

	resealed := make([]string, len(keys))
	for i, plain := range opened {
		sealed, err := s.Seal(plain)
		if err != nil {
			return nil, err
		}
		resealed[i] = sealed
	}
	return resealed, nil
}
