// Package logging configures zerolog for batchforge components.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	root = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger()
)

// Setup configures the global logger. Level is one of trace, debug, info,
// warn, error; format is "console" or "json". Unknown values fall back to
// info/console.
func Setup(level, format string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if !strings.EqualFold(format, "json") {
		out = consoleWriter(os.Stderr)
	}

	mu.Lock()
	root = zerolog.New(out).Level(parsed).With().Timestamp().Logger()
	mu.Unlock()
}

// Component returns a logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("component", name).Logger()
}

// Root returns the global logger.
func Root() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

func consoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
}
