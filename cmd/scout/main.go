// Command scout is the operator entry point for the SidelineSignal
// discovery engine: run-cycle, test, train, and serve subcommands are
// implemented in internal/cli.
package main

import (
	cmd "github.com/elliotttmiller/signalscout/internal/cli"
)

func main() {
	cmd.Execute()
}
