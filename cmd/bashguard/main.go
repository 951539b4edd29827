// Command bashguard is a Claude Code PermissionRequest hook that lets
// read-only shell commands run without a confirmation dialog.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "bashguard:", err)
		os.Exit(1)
	}
}

// exitError ends the process with code and no message.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
