package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	Internal = component(os.Stdout, "internal")
	HTTP     = component(os.Stdout, "http")
	Payments = component(os.Stdout, "payments")
	Gateway  = component(os.Stdout, "gateway")
	Archive  = component(os.Stdout, "archive")
	Store    = component(os.Stdout, "store")
)

// Setup points every component logger at out. Call it once from main before
// any goroutine starts logging.
func Setup(out io.Writer, debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	Internal = component(out, "internal")
	HTTP = component(out, "http")
	Payments = component(out, "payments")
	Gateway = component(out, "gateway")
	Archive = component(out, "archive")
	Store = component(out, "store")
}

func component(out io.Writer, name string) zerolog.Logger {
	w := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    out != os.Stdout && out != os.Stderr,
		FormatLevel: func(i interface{}) string {
			return fmt.Sprintf("| %-6s|", i)
		},
	}
	return zerolog.New(w).With().Timestamp().Str("component", name).Logger()
}
