// Package procmeta reads per-process records from the proc filesystem.
//
// FS addresses a proc root (normally /proc) so that callers can probe for a
// PID's records, extract its command line and locate its oom_score_adj
// attribute. Every accessor treats a vanished process as an ordinary outcome:
// probes report false and extraction yields an empty CommandLine.
//
// The cmdline record is a sequence of NUL-terminated tokens of unknown total
// length; ParseCmdline streams it and never assumes a bound on token size.
package procmeta
