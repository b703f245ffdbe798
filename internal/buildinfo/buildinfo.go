// Package buildinfo exposes version metadata stamped at link time.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// Set via -ldflags="-X iot-state-skill/internal/buildinfo.Version=..."
// and friends; the defaults identify an unstamped development build.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Uptime reports how long the process has been running, truncated to
// whole seconds for log readability.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// String is the one-line identity used for the startup banner and the
// version subcommand.
func String() string {
	return fmt.Sprintf("iot-state-skill %s (commit %s, built %s, %s)",
		Version, GitCommit, BuildTime, runtime.Version())
}
