// Package secrets implements C1, the Credentials Store: per-user Git
// tokens encrypted at rest with an authenticated symmetric cipher, plus the
// maskSecrets primitive every other component must route credential-bearing
// text through before it reaches a log line or a user-visible reply.
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/bytedance/sonic"

	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/pkg/logs"
)

// ErrKeyMissing is the fatal failure mode when the symmetric key cannot be
// loaded or created (§4.1 spec.md).
var ErrKeyMissing = errors.New("secrets: encryption key missing")

// ErrNotFound is returned (not DecryptFailed's detail) whenever a token
// cannot be decrypted or does not exist — the spec requires DecryptFailed
// to surface as not-found without leaking why.
var ErrNotFound = errors.New("secrets: token not found")

const keySize = 32 // secretbox keys are [32]byte

// credentialRecord is the on-disk shape for one platform credential.
type credentialRecord struct {
	Username       string `json:"username"`
	EncryptedToken string `json:"encryptedToken"` // hex(nonce || box)
}

type userCredentials map[core.Platform]credentialRecord

// Store persists UserCredentials (§3 spec.md) encrypted with a process-
// local symmetric key, guarded by an in-process mutex and saved through an
// atomic temp-file rename, and never logs plaintext.
type Store struct {
	dir string // directory holding key + credentials.json

	mu      sync.Mutex
	key     *[keySize]byte
	byUser  map[int64]userCredentials
	loaded  bool
}

// NewStore opens (creating if absent) the credentials store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("secrets: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("secrets: create dir: %w", err)
	}

	s := &Store{dir: dir, byUser: make(map[int64]userCredentials)}
	key, err := s.loadOrCreateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMissing, err)
	}
	s.key = key

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) keyPath() string        { return filepath.Join(s.dir, "secret.key") }
func (s *Store) credentialsPath() string { return filepath.Join(s.dir, "credentials.json") }

func (s *Store) loadOrCreateKey() (*[keySize]byte, error) {
	raw, err := os.ReadFile(s.keyPath())
	if err == nil {
		decoded, decErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decErr != nil || len(decoded) != keySize {
			return nil, fmt.Errorf("corrupt key file")
		}
		var key [keySize]byte
		copy(key[:], decoded)
		return &key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	var key [keySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.keyPath(), []byte(hex.EncodeToString(key[:])), 0o600); err != nil {
		return nil, err
	}
	return &key, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.credentialsPath())
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("secrets: read credentials file: %w", err)
	}

	var onDisk map[string]userCredentials
	if err := sonic.Unmarshal(raw, &onDisk); err != nil {
		return fmt.Errorf("secrets: parse credentials file: %w", err)
	}
	for key, creds := range onDisk {
		userID, convErr := parseUserID(key)
		if convErr != nil {
			continue
		}
		s.byUser[userID] = creds
	}
	s.loaded = true
	return nil
}

func (s *Store) saveLocked() error {
	onDisk := make(map[string]userCredentials, len(s.byUser))
	for userID, creds := range s.byUser {
		onDisk[formatUserID(userID)] = creds
	}
	raw, err := sonic.Marshal(onDisk)
	if err != nil {
		return fmt.Errorf("secrets: marshal credentials: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "credentials.json.tmp.*")
	if err != nil {
		return fmt.Errorf("secrets: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("secrets: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.credentialsPath())
}

// AddToken encrypts and persists a token for userId/platform.
func (s *Store) AddToken(userID int64, platform core.Platform, username, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc, err := s.encrypt(token)
	if err != nil {
		return fmt.Errorf("secrets: encrypt token: %w", err)
	}

	creds, ok := s.byUser[userID]
	if !ok {
		creds = make(userCredentials, 2)
	}
	creds[platform] = credentialRecord{Username: username, EncryptedToken: enc}
	s.byUser[userID] = creds

	if err := s.saveLocked(); err != nil {
		logs.Error("[secrets] save credentials for user %d failed: %v", userID, err)
		return err
	}
	return nil
}

// GetToken resolves (username, token) for userId/platform. Any decryption
// failure collapses to ErrNotFound per DecryptFailed's spec'd behavior.
func (s *Store) GetToken(userID int64, platform core.Platform) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, ok := s.byUser[userID]
	if !ok {
		return "", "", ErrNotFound
	}
	rec, ok := creds[platform]
	if !ok {
		return "", "", ErrNotFound
	}
	token, err := s.decrypt(rec.EncryptedToken)
	if err != nil {
		logs.Warn("[secrets] decrypt failed for user %d platform %s", userID, platform)
		return "", "", ErrNotFound
	}
	return rec.Username, token, nil
}

// RemoveToken deletes one platform's credential, or all of them when
// platform is empty.
func (s *Store) RemoveToken(userID int64, platform core.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, ok := s.byUser[userID]
	if !ok {
		return nil
	}
	if platform == "" {
		delete(s.byUser, userID)
	} else {
		delete(creds, platform)
		if len(creds) == 0 {
			delete(s.byUser, userID)
		} else {
			s.byUser[userID] = creds
		}
	}
	return s.saveLocked()
}

// ListPlatforms returns the platforms with a stored credential for userId.
func (s *Store) ListPlatforms(userID int64) []core.Platform {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, ok := s.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]core.Platform, 0, len(creds))
	for p := range creds {
		out = append(out, p)
	}
	return out
}

func (s *Store) encrypt(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, s.key)
	return hex.EncodeToString(box), nil
}

func (s *Store) decrypt(encoded string) (string, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) < 24 {
		return "", fmt.Errorf("malformed ciphertext")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, s.key)
	if !ok {
		return "", fmt.Errorf("decryption failed")
	}
	return string(plain), nil
}

func formatUserID(userID int64) string {
	return fmt.Sprintf("%d", userID)
}

func parseUserID(key string) (int64, error) {
	var userID int64
	_, err := fmt.Sscanf(key, "%d", &userID)
	return userID, err
}
