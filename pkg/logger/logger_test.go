package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igvault/pkg/config"
)

func TestNew(t *testing.T) {
	t.Run("valid levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "fatal", "disabled"} {
			log, err := New(&config.LoggingConfig{Level: level})
			require.NoError(t, err, "level %q", level)
			assert.NotNil(t, log)
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New(&config.LoggingConfig{Level: "chatty"})
		assert.Error(t, err)
	})
}

func TestTestLoggerRecordsEntries(t *testing.T) {
	log := NewTestLogger()

	log.Info("starting")
	log.WarnWithFields("slow request", map[string]interface{}{"ms": 900})
	log.WithField("username", "alice").Error("fetch failed")

	assert.True(t, log.HasEntry("info", "starting"))
	assert.True(t, log.HasEntry("warn", "slow request"))
	assert.False(t, log.HasEntry("error", "never logged"))

	entries := log.Entries()
	require.Len(t, entries, 2) // WithField returns a child logger
	assert.Equal(t, 900, entries[1].Fields["ms"])
}

func TestWithErrorNil(t *testing.T) {
	log := NewTestLogger()
	assert.Equal(t, Logger(log), log.WithError(nil))
}

func TestGetLoggerDefault(t *testing.T) {
	// GetLogger must never return nil, even without Initialize.
	assert.NotNil(t, GetLogger())
}
