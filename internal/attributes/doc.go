// Package attributes evaluates custom attribute expressions against the
// command line of each scored process.
//
// Expressions use the expr language and see four variables:
//   - args: the command-line tokens
//   - cmdline: the tokens joined by spaces
//   - basename: the executable name used for exemption matching
//   - pid: the process identifier
//
// A map result expands into one attribute per key, named NAME.KEY.
package attributes
