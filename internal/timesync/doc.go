// Package timesync turns kernel monotonic timestamps carried by fork records
// into wall-clock times for logs and spans.
//
// The boot time comes from the btime line of <proc>/stat. When that cannot be
// read, it is estimated from sysinfo(2) uptime.
package timesync
