package auth

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore is an in-memory Store for manager tests
type mockStore struct {
	creds    *Credentials
	saveErr  error
	loadErr  error
	clearErr error
}

func (m *mockStore) Save(creds *Credentials) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	c := *creds
	m.creds = &c
	return nil
}

func (m *mockStore) Load() (*Credentials, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.creds == nil {
		return nil, ErrCredentialsNotFound
	}
	return m.creds, nil
}

func (m *mockStore) Clear() error {
	if m.clearErr != nil {
		return m.clearErr
	}
	if m.creds == nil {
		return ErrCredentialsNotFound
	}
	m.creds = nil
	return nil
}

func testCredentials() *Credentials {
	return &Credentials{
		Username:  "archivist",
		SessionID: "1234567890abcdef",
		CSRFToken: "csrf1234token",
		UserAgent: "test-agent",
	}
}

func TestManagerSaveAndLoad(t *testing.T) {
	store := &mockStore{}
	mgr := NewManagerWithStores(store)

	require.NoError(t, mgr.Save(testCredentials()))

	creds, err := mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, "archivist", creds.Username)
	assert.Equal(t, "1234567890abcdef", creds.SessionID)
	assert.False(t, creds.SavedAt.IsZero())
}

func TestManagerSaveValidation(t *testing.T) {
	mgr := NewManagerWithStores(&mockStore{})

	assert.Error(t, mgr.Save(nil))
	assert.Error(t, mgr.Save(&Credentials{CSRFToken: "csrf"}))
	assert.Error(t, mgr.Save(&Credentials{SessionID: "sid"}))
}

func TestManagerSaveFallsBack(t *testing.T) {
	broken := &mockStore{saveErr: errors.New("keychain locked")}
	working := &mockStore{}
	mgr := NewManagerWithStores(broken, working)

	require.NoError(t, mgr.Save(testCredentials()))
	assert.Nil(t, broken.creds)
	assert.NotNil(t, working.creds)
}

func TestManagerLoadFallsBack(t *testing.T) {
	empty := &mockStore{}
	holding := &mockStore{creds: testCredentials()}
	mgr := NewManagerWithStores(empty, holding)

	creds, err := mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, "archivist", creds.Username)
}

func TestManagerLoadNotFound(t *testing.T) {
	mgr := NewManagerWithStores(&mockStore{}, &mockStore{})

	_, err := mgr.Load()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerClear(t *testing.T) {
	first := &mockStore{creds: testCredentials()}
	second := &mockStore{creds: testCredentials()}
	mgr := NewManagerWithStores(first, second)

	require.NoError(t, mgr.Clear())
	assert.Nil(t, first.creds)
	assert.Nil(t, second.creds)

	assert.ErrorIs(t, mgr.Clear(), ErrCredentialsNotFound)
}

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	t.Setenv("IGVAULT_PASSPHRASE", "test-passphrase")

	path := filepath.Join(t.TempDir(), "session.enc")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save(testCredentials()))

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "1234567890abcdef", creds.SessionID)
	assert.Equal(t, "csrf1234token", creds.CSRFToken)

	require.NoError(t, store.Clear())
	_, err = store.Load()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.enc")

	t.Setenv("IGVAULT_PASSPHRASE", "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(testCredentials()))

	t.Setenv("IGVAULT_PASSPHRASE", "second")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	_, err = other.Load()
	assert.Error(t, err)
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv("IGVAULT_PASSPHRASE", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "session.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(testCredentials()))

	// A second store over the same directory reuses the generated
	// passphrase and can decrypt.
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	creds, err := other.Load()
	require.NoError(t, err)
	assert.Equal(t, "1234567890abcdef", creds.SessionID)
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Setenv("IGVAULT_SESSION_ID", "env-session")
	t.Setenv("IGVAULT_CSRF_TOKEN", "env-csrf")
	t.Setenv("IGVAULT_USERNAME", "envuser")

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "env-session", creds.SessionID)
	assert.Equal(t, "env-csrf", creds.CSRFToken)
	assert.Equal(t, "envuser", creds.Username)

	assert.ErrorIs(t, store.Save(testCredentials()), ErrStoreReadOnly)
	assert.ErrorIs(t, store.Clear(), ErrStoreReadOnly)
}

func TestEnvironmentStoreNotFound(t *testing.T) {
	t.Setenv("IGVAULT_SESSION_ID", "")

	store := NewEnvironmentStore()
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestSanitize(t *testing.T) {
	creds := testCredentials()
	masked := creds.Sanitize()

	assert.Equal(t, "archivist", masked.Username)
	assert.Equal(t, "1234...cdef", masked.SessionID)
	assert.Equal(t, "********", (&Credentials{SessionID: "short"}).Sanitize().SessionID)
	assert.Nil(t, (*Credentials)(nil).Sanitize())
}
