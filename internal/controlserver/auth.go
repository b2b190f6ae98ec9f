package controlserver

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	tokenHashIterations = 100_000
	tokenHashKeyLength  = 32
	tokenHashSaltLength = 16
)

// tokenAuthenticator verifies the control surface's Bearer token. The
// configured SPIRITSTREAM_API_TOKEN is hashed once at construction using
// the teacher's pbkdf2$sha256$iterations$salt$key shape, and every
// request's candidate token is re-derived and compared in constant time
// rather than kept around as a second copy of the plaintext secret.
type tokenAuthenticator struct {
	encodedHash string // empty means authentication is disabled
}

func newTokenAuthenticator(rawToken string) (*tokenAuthenticator, error) {
	if strings.TrimSpace(rawToken) == "" {
		return &tokenAuthenticator{}, nil
	}
	encoded, err := hashToken(rawToken)
	if err != nil {
		return nil, fmt.Errorf("controlserver: hash api token: %w", err)
	}
	return &tokenAuthenticator{encodedHash: encoded}, nil
}

func (a *tokenAuthenticator) enabled() bool {
	return a != nil && a.encodedHash != ""
}

func (a *tokenAuthenticator) verify(candidate string) bool {
	if !a.enabled() {
		return true
	}
	err := verifyToken(a.encodedHash, candidate)
	return err == nil
}

// requireAuth wraps next with Bearer-token enforcement. When no token is
// configured the middleware is a no-op, matching the control-surface
// contract's "when that variable is set" wording.
func (a *tokenAuthenticator) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled() {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		candidate := strings.TrimPrefix(header, prefix)
		if !a.verify(candidate) {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hashToken(token string) (string, error) {
	salt := make([]byte, tokenHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(token), salt, tokenHashIterations, tokenHashKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", tokenHashIterations, encodedSalt, encodedKey), nil
}

func verifyToken(encodedHash, candidate string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return fmt.Errorf("controlserver: malformed token hash")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return fmt.Errorf("controlserver: unsupported token hash algorithm")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("controlserver: malformed token hash iterations: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("controlserver: malformed token hash salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("controlserver: malformed token hash key: %w", err)
	}

	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if len(derived) != len(storedKey) || subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return fmt.Errorf("controlserver: token mismatch")
	}
	return nil
}
