package instagram

import (
	"context"
	"net/http"
	"testing"

	"igvault/pkg/config"
	"igvault/pkg/errors"
	"igvault/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKeepaliveSuccess(t *testing.T) {
	log := logger.NewTestLogger()
	client := newTestClient(log, map[string]interface{}{
		CurrentUserURL(): CurrentUserResponse{
			User:   InfoUser{PK: "99", Username: "archivist"},
			Status: "ok",
		},
	})

	sess := NewSession(client, log)
	require.NoError(t, sess.Keepalive(context.Background()))

	status := sess.Status()
	assert.True(t, status.HasSession)
	assert.True(t, status.LoggedIn)
	assert.Equal(t, "archivist", status.Username)
	assert.False(t, status.NeedsManualRefresh)
	assert.False(t, status.LastKeepalive.IsZero())
}

func TestSessionKeepaliveAuthFailure(t *testing.T) {
	log := logger.NewTestLogger()
	client := newTestClient(log, map[string]interface{}{
		CurrentUserURL(): http.StatusUnauthorized,
	})

	sess := NewSession(client, log)
	err := sess.Keepalive(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindAuth, errors.KindOf(err))

	status := sess.Status()
	assert.False(t, status.LoggedIn)
	assert.True(t, status.NeedsManualRefresh)
}

func TestSessionKeepaliveTransientFailureKeepsState(t *testing.T) {
	log := logger.NewTestLogger()

	// First a successful probe, then a server error
	responses := map[string]interface{}{
		CurrentUserURL(): CurrentUserResponse{
			User:   InfoUser{Username: "archivist"},
			Status: "ok",
		},
	}
	client := newTestClient(log, responses)
	sess := NewSession(client, log)
	require.NoError(t, sess.Keepalive(context.Background()))

	responses[CurrentUserURL()] = http.StatusInternalServerError
	err := sess.Keepalive(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindUpstream, errors.KindOf(err))

	// A transient upstream failure must not flag the session for
	// manual refresh.
	status := sess.Status()
	assert.True(t, status.LoggedIn)
	assert.False(t, status.NeedsManualRefresh)
}

func TestSessionKeepaliveNoCredentials(t *testing.T) {
	log := logger.NewTestLogger()
	client := NewClient(&config.InstagramConfig{APITimeout: testInstagramConfig().APITimeout}, log)

	sess := NewSession(client, log)
	err := sess.Keepalive(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindAuth, errors.KindOf(err))

	status := sess.Status()
	assert.False(t, status.HasSession)
	assert.False(t, status.LoggedIn)
	assert.False(t, status.NeedsManualRefresh)
}
