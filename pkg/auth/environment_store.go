package auth

import "os"

// EnvironmentStore implements Store over environment variables. It is
// read-only; credentials set in the environment cannot be changed or
// removed by the process.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-backed credential store.
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Save is not supported for environment credentials.
func (s *EnvironmentStore) Save(creds *Credentials) error {
	return ErrStoreReadOnly
}

// Load reads credentials from IGVAULT_SESSION_ID and friends.
func (s *EnvironmentStore) Load() (*Credentials, error) {
	sessionID := os.Getenv("IGVAULT_SESSION_ID")
	if sessionID == "" {
		return nil, ErrCredentialsNotFound
	}

	return &Credentials{
		Username:  os.Getenv("IGVAULT_USERNAME"),
		SessionID: sessionID,
		CSRFToken: os.Getenv("IGVAULT_CSRF_TOKEN"),
		UserAgent: os.Getenv("IGVAULT_USER_AGENT"),
	}, nil
}

// Clear is not supported for environment credentials.
func (s *EnvironmentStore) Clear() error {
	return ErrStoreReadOnly
}
