// Package intercept observes process creation in a supervised tree and hands
// every new child to the score assigner.
//
// Each creation yields two events. The PARENT event names the creating
// process and is pass-through. The CHILD event names the new process and
// triggers exactly one assignment, addressed by PID from the tracer's own
// context, never from inside the child.
//
// Tracer (Linux) launches a command under ptrace with fork, vfork and clone
// reporting enabled. The creating process is held at its fork stop until the
// assignment returns, so the score is in place before control goes back to
// the caller. The new child's initial stop is resumed untouched.
package intercept
