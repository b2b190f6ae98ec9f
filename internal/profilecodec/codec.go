// Package profilecodec serializes profiles to canonical JSON and seals
// whole profile files with a password using Argon2id + AES-256-GCM.
package profilecodec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/ScopeCreep-zip/spiritstream/internal/corebus"
	"github.com/ScopeCreep-zip/spiritstream/internal/models"
)

// Magic is the 4-byte header identifying a sealed profile file.
var Magic = [4]byte{'M', 'G', 'L', 'A'}

const (
	saltLen  = 32
	nonceLen = 12

	argonMemoryKiB  = 65536
	argonIterations = 3
	argonThreads    = 4
	argonKeyLen     = 32
)

// Serialize produces canonical, stably-ordered JSON for diffability. Go's
// encoding/json already emits struct fields in declaration order and map
// keys sorted lexicographically, which is what "stable field ordering"
// requires here.
func Serialize(p *models.Profile) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, corebus.New("profilecodec.Serialize", corebus.KindInvalidArgument, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Deserialize parses plaintext profile JSON.
func Deserialize(data []byte) (*models.Profile, error) {
	var p models.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, corebus.New("profilecodec.Deserialize", corebus.KindInvalidArgument, fmt.Errorf("malformed-profile: %w", err))
	}
	return &p, nil
}

// SealFile produces MGLA || salt(32) || nonce(12) || AES-256-GCM(plaintext).
// Salt and nonce are freshly generated per call.
func SealFile(plaintext []byte, password string) ([]byte, error) {
	const op = "profilecodec.SealFile"
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, corebus.New(op, corebus.KindIO, err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, corebus.New(op, corebus.KindIO, err)
	}

	key := deriveKey(password, salt)
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, corebus.New(op, corebus.KindAuthFailed, err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(Magic)+saltLen+nonceLen+len(ciphertext))
	out = append(out, Magic[:]...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// OpenFile is the inverse of SealFile.
func OpenFile(data []byte, password string) ([]byte, error) {
	const op = "profilecodec.OpenFile"
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, corebus.Newf(op, corebus.KindAuthFailed, "bad-magic")
	}
	data = data[len(Magic):]
	if len(data) < saltLen+nonceLen {
		return nil, corebus.Newf(op, corebus.KindAuthFailed, "truncated")
	}
	salt := data[:saltLen]
	nonce := data[saltLen : saltLen+nonceLen]
	ciphertext := data[saltLen+nonceLen:]

	key := deriveKey(password, salt)
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, corebus.New(op, corebus.KindAuthFailed, err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, corebus.New(op, corebus.KindAuthFailed, fmt.Errorf("auth-failed"))
	}
	return plaintext, nil
}

// deriveKey runs Argon2id with the parameters §4.2 specifies: m=65536 KiB,
// t=3, p=4, output 32 bytes.
func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonIterations, argonMemoryKiB, argonThreads, argonKeyLen)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
