// Command claude-memory-service runs the memory service described in
// SPEC_FULL.md: build a ServiceCore from config, then serve it over MCP
// stdio, MCP streaming HTTP, a REST HTTP API, and an optional transcript
// collector, all sharing one cancelable lifetime.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
