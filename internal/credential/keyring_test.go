package credential

import (
	"context"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/applytrack/internal/source"
)

func newTestStore() *Store {
	return New(keyring.NewArrayKeyring(nil))
}

func TestIMAPCredentials(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.IMAP(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)

	want := source.Credentials{Username: "me@example.com", Password: "p@ss:word"}
	require.NoError(t, s.SetIMAP("u1", want))

	got, err := s.IMAP(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, s.DeleteIMAP("u1"))
	_, err = s.IMAP(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting twice is fine.
	require.NoError(t, s.DeleteIMAP("u1"))
}

func TestAPIKeys(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.SetAPIKey("gemini", "g-key"))
	require.NoError(t, s.SetAPIKey("anthropic", "a-key"))

	key, err := s.APIKey("gemini")
	require.NoError(t, err)
	assert.Equal(t, "g-key", key)

	_, err = s.APIKey("openai")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCorruptIMAPSecret(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Set("imap-u1", "not json"))

	_, err := s.IMAP(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
