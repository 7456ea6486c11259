package logx

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog logger configured for console output.
// Debug events are only emitted when verbose is set.
func NewLogger(verbose bool) zerolog.Logger {
	return newLogger(os.Stderr, verbose)
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		short := file
		for i := len(file) - 1; i > 0; i-- {
			if file[i] == '/' {
				short = file[i+1:]
				break
			}
		}
		return fmt.Sprintf("%-24s", fmt.Sprintf("%s:%d", short, line))
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
}
