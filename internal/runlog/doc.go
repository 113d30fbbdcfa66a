// Package runlog runs external commands on behalf of workflow steps and keeps
// a record of every invocation.
//
// Each invocation gets its own directory under the process log root holding
// the captured stdout and stderr, and one structured entry in the index
// stream with the working directory, display command line, input, output
// paths, environment, exit status and elapsed time.
//
// Commands are always executed from their argument vector. The shell-quoted
// command line exists only for display in the index.
//
// Ownership boundary:
// - synchronous and asynchronous command execution
//
// - concurrent fan-out over a set of inputs
//
// - re-invocation of the hosting lab executable
//
// - per-session run metrics
package runlog
