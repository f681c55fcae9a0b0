// Command ups-guardian monitors a UPS via NUT and orchestrates a graceful,
// multi-stage shutdown of the host and its dependents when power fails.
package main

import (
	"os"

	"github.com/sweeney/ups-guardian/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
