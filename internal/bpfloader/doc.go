// Package bpfloader builds and attaches the fork watcher used when oomguard
// follows a process tree it did not start.
//
// The program is assembled at runtime and attached to the sched/sched_process_fork
// tracepoint. Field offsets come from the tracepoint's format file, so no
// compiled object or BTF is needed. A fork whose parent is in the tracked-PID
// map adds the child to the map and emits a ForkRecord on the ring buffer.
package bpfloader
