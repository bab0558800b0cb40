package testutil

import (
	"log/slog"

	"github.com/openkb/docbase/internal/log"
)

// Logger returns a logger that discards everything. Tests that assert on log
// output should construct their own with a bytes.Buffer instead.
func Logger() *slog.Logger {
	return log.NewNop()
}
