package procmeta

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultRoot is the mount point of the proc filesystem.
const DefaultRoot = "/proc"

// FS resolves per-PID records under a proc root.
type FS struct {
	Root string
}

// NewFS returns an FS rooted at root, or DefaultRoot when root is empty.
func NewFS(root string) FS {
	if root == "" {
		root = DefaultRoot
	}
	return FS{Root: root}
}

func (fs FS) pidPath(pid int, name string) string {
	return filepath.Join(fs.Root, strconv.Itoa(pid), name)
}

// CmdlinePath returns the invocation record of pid.
func (fs FS) CmdlinePath(pid int) string {
	return fs.pidPath(pid, "cmdline")
}

// OOMScoreAdjPath returns the OOM priority attribute of pid.
func (fs FS) OOMScoreAdjPath(pid int) string {
	return fs.pidPath(pid, "oom_score_adj")
}

// StatusPath returns the status record of pid.
func (fs FS) StatusPath(pid int) string {
	return fs.pidPath(pid, "status")
}

// Exists reports whether path is present, like access(2) with F_OK.
func (fs FS) Exists(path string) bool {
	return unix.Access(path, unix.F_OK) == nil
}

// IsThreadGroupLeader reports whether pid names a process rather than a
// secondary thread. An unreadable status counts as a process.
func (fs FS) IsThreadGroupLeader(pid int) bool {
	f, err := os.Open(fs.StatusPath(pid))
	if err != nil {
		return true
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		value, ok := strings.CutPrefix(scanner.Text(), "Tgid:")
		if !ok {
			continue
		}
		tgid, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return true
		}
		return tgid == pid
	}
	return true
}
