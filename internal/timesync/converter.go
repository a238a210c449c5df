package timesync

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

var errNoBootTime = errors.New("btime not found")

// Converter maps nanoseconds since boot to wall-clock time.
type Converter struct {
	bootTime  time.Time
	estimated bool
}

// NewConverter reads the boot time under procRoot. It only fails when
// neither the stat file nor sysinfo(2) give a usable answer.
func NewConverter(procRoot string) (*Converter, error) {
	bootTime, err := readBootTimeFile(filepath.Join(procRoot, "stat"))
	if err == nil {
		return &Converter{bootTime: bootTime}, nil
	}

	var info unix.Sysinfo_t
	if sysErr := unix.Sysinfo(&info); sysErr != nil {
		return nil, fmt.Errorf("boot time: %w", errors.Join(err, sysErr))
	}
	uptime := time.Duration(info.Uptime) * time.Second
	return &Converter{bootTime: time.Now().Add(-uptime), estimated: true}, nil
}

// NewConverterAt returns a Converter with a fixed boot time.
func NewConverterAt(bootTime time.Time) *Converter {
	return &Converter{bootTime: bootTime}
}

// ToWallClock converts a monotonic timestamp.
func (c *Converter) ToWallClock(monotonicNanos uint64) time.Time {
	//nolint:gosec // kernel timestamps fit in int64 for centuries
	return c.bootTime.Add(time.Duration(monotonicNanos))
}

// BootTime returns the boot time used for conversions.
func (c *Converter) BootTime() time.Time {
	return c.bootTime
}

// Estimated reports whether the boot time was derived from uptime.
func (c *Converter) Estimated() bool {
	return c.estimated
}

func readBootTimeFile(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // read-only
	}()
	return ReadBootTime(f)
}

// ReadBootTime extracts the btime line from a /proc/stat stream.
func ReadBootTime(r io.Reader) (time.Time, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		value, ok := strings.CutPrefix(scanner.Text(), "btime ")
		if !ok {
			continue
		}
		secs, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing btime %q: %w", value, err)
		}
		return time.Unix(secs, 0), nil
	}
	if err := scanner.Err(); err != nil {
		return time.Time{}, err
	}
	return time.Time{}, errNoBootTime
}
