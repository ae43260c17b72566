// SPDX-License-Identifier: MIT
package main

import (
	"trap/cmd"
	applog "trap/internal/log"
	"trap/pkg/build"
)

// main is the entry point for the trap.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Load configuration and parse command line arguments
//   - Build the engine, pipeline and detector
//
// 2. Concurrent Phase (Hot Path):
//   - The tick source drives the resampling engine
//   - The monitor turns each full window into a detection event
//   - Transports and the status view consume the events
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Detach the tick source
//   - Close transports and PortAudio
func main() {
	if err := build.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}

	if err := cmd.Execute(); err != nil {
		applog.Fatalf("%v", err)
	}
}
