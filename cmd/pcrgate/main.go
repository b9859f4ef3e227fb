// Command pcrgate manages expected PCR selectors and evaluates platform
// state before credential issuance.
package main

import (
	"os"

	"github.com/verdantia/pcrgate/cmd/pcrgate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// Infrastructure failures (registry/device down) exit 2 so
		// operators can tell an outage from a clean denial (exit 1).
		os.Exit(2)
	}
	os.Exit(cmd.ExitCode())
}
