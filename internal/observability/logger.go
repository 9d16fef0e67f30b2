package observability

import (
	"github.com/danmuck/v4link/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures logging for profile and tags the global logger with app.
func InitLogger(app string, profile logging.Profile) zerolog.Logger {
	logging.Configure(profile)
	logger := log.Logger.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
