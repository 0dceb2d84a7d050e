// Package auth stores the Instagram session credentials used by the
// server. Credentials are kept in the system keychain when available,
// with an encrypted file and environment variables as fallbacks.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Credentials is the stored session material.
type Credentials struct {
	Username  string    `json:"username,omitempty"`
	SessionID string    `json:"session_id"`
	CSRFToken string    `json:"csrf_token"`
	UserAgent string    `json:"user_agent,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
}

// Store persists a single set of session credentials.
type Store interface {
	// Save persists the credentials, replacing any previous set.
	Save(creds *Credentials) error

	// Load returns the stored credentials.
	Load() (*Credentials, error)

	// Clear removes the stored credentials.
	Clear() error
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreReadOnly       = errors.New("credential store is read-only")
)

// Manager chains credential stores with fallback. Loads return the
// first hit; saves go to the first store that accepts them.
type Manager struct {
	stores []Store
}

// NewManager creates a manager with the default store chain: system
// keyring, then encrypted file, then environment variables.
func NewManager() (*Manager, error) {
	var stores []Store

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := configDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "session.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over an explicit store chain.
func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores}
}

// Save validates and persists the credentials.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil || creds.SessionID == "" {
		return ErrInvalidCredentials
	}
	if creds.CSRFToken == "" {
		return ErrInvalidCredentials
	}

	creds.SavedAt = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Save(creds); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Load returns credentials from the first store that has them.
func (m *Manager) Load() (*Credentials, error) {
	for _, store := range m.stores {
		if creds, err := store.Load(); err == nil && creds != nil {
			return creds, nil
		}
	}
	return nil, ErrCredentialsNotFound
}

// Clear removes credentials from every store that holds them.
func (m *Manager) Clear() error {
	var cleared bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Clear(); err == nil {
			cleared = true
		} else if !errors.Is(err, ErrCredentialsNotFound) && !errors.Is(err, ErrStoreReadOnly) {
			lastErr = err
		}
	}

	if !cleared && lastErr != nil {
		return fmt.Errorf("failed to clear credentials: %w", lastErr)
	}
	if !cleared {
		return ErrCredentialsNotFound
	}
	return nil
}

// Sanitize returns a copy with the secrets masked for display.
func (c *Credentials) Sanitize() *Credentials {
	if c == nil {
		return nil
	}
	return &Credentials{
		Username:  c.Username,
		SessionID: maskString(c.SessionID),
		CSRFToken: maskString(c.CSRFToken),
		UserAgent: c.UserAgent,
		SavedAt:   c.SavedAt,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// configDir returns the configuration directory path, creating it if
// needed.
func configDir() (string, error) {
	var dir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", "igvault")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "igvault")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			dir = filepath.Join(xdgConfig, "igvault")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".config", "igvault")
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return dir, nil
}
