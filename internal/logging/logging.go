// Package logging configures the process-wide diagnostic logger.
//
// An earlier version of this pipeline printed operational messages straight to os.Stderr from
// cmd/smog/main.go and free-form fmt.Println traces from pkg/vm/debugger.go;
// we generalize that into one slog.Logger on stderr. The collector's
// per-cycle lines are its only user: CLI diagnostics are printed with
// fmt, and native-function panics are not caught or logged. The
// program's own PRINT output stays on stdout untouched by any of this.
package logging

import (
	"log/slog"
	"os"
)

// New builds the logger main wires into vm.New. verbose lowers the level
// to Debug so --trace-gc's per-cycle lines are emitted.
func New(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
