// Package eventstream drains fork records from the watcher's ring buffer and
// hands each new process to the interceptor.
package eventstream
