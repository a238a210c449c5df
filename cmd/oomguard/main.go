// oomguard sets the OOM killer adjustment of every process a daemon creates.
// Children are marked for death unless their command line matches the
// exemption list, in which case they are protected.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Version information injected at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// exitError carries the supervised command's exit status out of cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	err := newRootCommand().Execute()
	if err == nil {
		return
	}

	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
