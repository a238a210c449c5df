// Package oomscore decides and commits the OOM killer adjustment of a newly
// created process.
//
// Assign runs a fixed sequence against the proc filesystem:
//
//	probe oom_score_adj -> probe cmdline -> extract -> classify -> write
//
// A process that vanished before a probe is left alone. A command line that
// yields no tokens is marked for death without consulting the exemption list.
// Write failures are recorded in the Result and never returned as errors,
// since the target's lifetime is outside oomguard's control.
package oomscore
