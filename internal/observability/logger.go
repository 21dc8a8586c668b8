package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger stamps the process-wide logger with the application name. The
// output profile (level, timestamps, color, destination) comes from
// internal/logging; call logging.Configure first.
func InitLogger(app string) zerolog.Logger {
	logger := log.Logger.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
