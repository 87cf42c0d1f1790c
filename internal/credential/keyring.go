// Package credential keeps IMAP passwords and provider API keys in the
// system keyring.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"

	"github.com/nhle/applytrack/internal/source"
)

const serviceName = "applytrack"

// ErrNotFound is returned when no credential is stored under a key.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes credentials in a keyring.
type Store struct {
	ring keyring.Keyring
}

// Open opens the system keyring. dir holds the encrypted file backend used
// when no OS keyring is available.
func Open(dir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("applytrack-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return New(ring), nil
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key. Deleting a missing key is not an
// error.
func (s *Store) Delete(key string) error {
	err := s.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

func imapKey(userID string) string { return "imap-" + userID }

func providerKey(name string) string { return "provider-" + name }

type imapSecret struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SetIMAP stores the mailbox login of userID.
func (s *Store) SetIMAP(userID string, creds source.Credentials) error {
	data, err := json.Marshal(imapSecret{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return fmt.Errorf("encoding imap credentials: %w", err)
	}
	return s.Set(imapKey(userID), string(data))
}

// IMAP returns the mailbox login of userID. Its signature matches
// ingest.CredentialLookup.
func (s *Store) IMAP(_ context.Context, userID string) (source.Credentials, error) {
	raw, err := s.Get(imapKey(userID))
	if err != nil {
		return source.Credentials{}, err
	}
	var secret imapSecret
	if err := json.Unmarshal([]byte(raw), &secret); err != nil {
		return source.Credentials{}, fmt.Errorf("decoding imap credentials of %s: %w", userID, err)
	}
	return source.Credentials{Username: secret.Username, Password: secret.Password}, nil
}

// DeleteIMAP forgets the mailbox login of userID.
func (s *Store) DeleteIMAP(userID string) error {
	return s.Delete(imapKey(userID))
}

// SetAPIKey stores the API key of a classification provider.
func (s *Store) SetAPIKey(provider, key string) error {
	return s.Set(providerKey(provider), key)
}

// APIKey returns the API key of a classification provider.
func (s *Store) APIKey(provider string) (string, error) {
	return s.Get(providerKey(provider))
}
