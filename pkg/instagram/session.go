package instagram

import (
	"context"
	"sync"
	"time"

	"igvault/pkg/errors"
	"igvault/pkg/logger"
)

// Status is a snapshot of the session state.
type Status struct {
	HasSession         bool      `json:"has_session"`
	LoggedIn           bool      `json:"logged_in"`
	Username           string    `json:"username,omitempty"`
	NeedsManualRefresh bool      `json:"needs_manual_refresh"`
	LastKeepalive      time.Time `json:"last_keepalive,omitempty"`
}

// Session tracks the health of the Instagram session cookie. A
// background keepalive probe keeps the cookie warm and flags sessions
// that have expired and need to be replaced by hand.
type Session struct {
	client *Client
	logger logger.Logger

	mu                 sync.RWMutex
	username           string
	loggedIn           bool
	needsManualRefresh bool
	lastKeepalive      time.Time
}

// NewSession creates a session tracker for the given client.
func NewSession(client *Client, log logger.Logger) *Session {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Session{
		client: client,
		logger: log,
	}
}

// Status returns a snapshot of the current session state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		HasSession:         s.client.HasSession(),
		LoggedIn:           s.loggedIn,
		Username:           s.username,
		NeedsManualRefresh: s.needsManualRefresh,
		LastKeepalive:      s.lastKeepalive,
	}
}

// Keepalive probes the session by fetching the logged-in account. A
// successful probe marks the session healthy; an auth failure marks it
// as needing a manual cookie refresh. Transient failures leave the
// state unchanged.
func (s *Session) Keepalive(ctx context.Context) error {
	if !s.client.HasSession() {
		s.mu.Lock()
		s.loggedIn = false
		s.username = ""
		s.mu.Unlock()
		return errors.New(errors.KindAuth, "no session cookie configured")
	}

	resp, err := s.client.FetchCurrentUser(ctx)
	if err != nil {
		kind := errors.KindOf(err)

		s.mu.Lock()
		if kind == errors.KindAuth {
			s.loggedIn = false
			s.needsManualRefresh = true
		}
		s.mu.Unlock()

		s.logger.WarnWithFields("session keepalive failed", map[string]interface{}{
			"error": err.Error(),
			"kind":  string(kind),
		})
		return err
	}

	s.mu.Lock()
	s.loggedIn = true
	s.needsManualRefresh = false
	s.username = resp.User.Username
	s.lastKeepalive = time.Now()
	s.mu.Unlock()

	s.logger.DebugWithFields("session keepalive ok", map[string]interface{}{
		"username": resp.User.Username,
	})

	return nil
}

// RunKeepalive probes the session immediately and then at every
// interval until the context is cancelled.
func (s *Session) RunKeepalive(ctx context.Context, interval time.Duration) {
	if err := s.Keepalive(ctx); err != nil {
		s.logger.WithError(err).Warn("initial session keepalive failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Keepalive(ctx); err != nil {
				s.logger.WithError(err).Warn("session keepalive failed")
			}
		}
	}
}
