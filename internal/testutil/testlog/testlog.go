package testlog

import (
	"testing"

	"github.com/danmuck/labctl/internal/logging"
	"github.com/rs/zerolog"
)

// Start returns a test-profile logger that writes through t.Log.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	cfg := logging.DefaultConfig(logging.ProfileTest)
	logger := logging.New(zerolog.NewTestWriter(t), cfg)
	logger.Info().Str("test", t.Name()).Msg("start")
	return logger
}
