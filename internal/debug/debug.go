// Package debug provides diagnostic logging gated on the HYPERION_LOG
// environment variable. Output goes to stderr so it never pollutes
// machine-readable stdout.
package debug

import (
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	enabled     = os.Getenv("HYPERION_LOG") != ""
	verboseMode = false
	logMutex    sync.Mutex
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables diagnostic output regardless of HYPERION_LOG.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// Logf writes a timestamped diagnostic line to stderr when logging is enabled.
func Logf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	logMutex.Lock()
	defer logMutex.Unlock()
	fmt.Fprintf(os.Stderr, "%s %s\n",
		time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
}
