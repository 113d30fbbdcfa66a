// Package tools provides host primitives shared by the lab core.
//
// Ownership boundary:
// - process spawning and exit-code extraction
//
// - input/output path validation
//
// - random names for scratch files and directories
package tools
