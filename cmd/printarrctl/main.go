// Command printarrctl is the operator-facing admin CLI over the same
// catalog, queue, and settings store cmd/server runs against: settings
// get/put/list/reset, queue depth/retry-stats/retry/cancel/get, and
// migrate status/up.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "printarrctl:", err)
		os.Exit(1)
	}
}
