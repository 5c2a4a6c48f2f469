package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger returns a child of the global logger tagged with the component name.
func Logger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
