// Package cmd implements the command-line interface for the hivemem entry
// store. It provides a hierarchical command structure for inspecting and
// mutating a store directory from the shell.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for entry operations (get, set, getv, del, keys, watch)
//   - lock: Commands for locking operations (acquire, release)
//   - stats: Command for printing store statistics
//   - util: Shared utilities for configuration and store construction (internal use)
//
// See hivemem -help for a list of all commands.
package cmd
