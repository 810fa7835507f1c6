// Package credentials keeps Jellyfin sign-in passwords encrypted at rest so
// the gateway can re-authenticate without the user present.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/saltyorg/jellygate/internal/database"
)

// ErrNotFound is returned when no credential is stored for a lookup key.
var ErrNotFound = errors.New("credential not found")

// Store encrypts passwords with a master key kept in a file next to the
// database. Each entry is sealed with a subkey derived from the master key
// and the entry's lookup key, so moving ciphertext between entries fails.
type Store struct {
	db  *database.DB
	key []byte
}

// Open loads or creates the master key next to the database and returns a
// ready store.
func Open(db *database.DB) (*Store, error) {
	key, err := loadOrCreateKey(db.Path() + ".key")
	if err != nil {
		return nil, err
	}
	return &Store{db: db, key: key}, nil
}

// Key builds the lookup key for a server and account pair. The server URL
// is normalized so "https://host/" and "https://host" address the same entry.
func Key(serverURL, username string) string {
	return strings.TrimRight(serverURL, "/") + "|" + username
}

// Put stores a password under the given lookup key.
func (s *Store) Put(lookupKey, password string) error {
	sealed, err := s.seal(lookupKey, password)
	if err != nil {
		return err
	}
	return s.db.PutCredential(lookupKey, sealed)
}

// Get returns the password stored under the given lookup key, or ErrNotFound.
func (s *Store) Get(lookupKey string) (string, error) {
	sealed, err := s.db.GetCredential(lookupKey)
	if err != nil {
		return "", err
	}
	if sealed == "" {
		return "", ErrNotFound
	}
	return s.open(lookupKey, sealed)
}

// Clear removes the password stored under the given lookup key.
func (s *Store) Clear(lookupKey string) error {
	return s.db.DeleteCredential(lookupKey)
}

// ClearAll removes every stored password.
func (s *Store) ClearAll() error {
	return s.db.DeleteAllCredentials()
}

// subkey derives the per-entry AES-256 key.
func (s *Store) subkey(lookupKey string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.key, nil, []byte(lookupKey)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

func (s *Store) seal(lookupKey, password string) (string, error) {
	key, err := s.subkey(lookupKey)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(password), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *Store) open(lookupKey, sealed string) (string, error) {
	key, err := s.subkey(lookupKey)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}
