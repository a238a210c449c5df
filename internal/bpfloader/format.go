package bpfloader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TracefsRoots lists the tracefs mount points probed, in order.
var TracefsRoots = []string{"/sys/kernel/tracing", "/sys/kernel/debug/tracing"}

// Field is one entry of a tracepoint format description.
type Field struct {
	Name   string
	Offset int
	Size   int
}

// ForkFormat holds the offsets the fork program reads from its context.
type ForkFormat struct {
	ParentPID int
	ChildPID  int
}

// ParseFields reads the field lines of a tracepoint format file.
func ParseFields(r io.Reader) (map[string]Field, error) {
	fields := make(map[string]Field)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		f, ok, err := parseFieldLine(scanner.Text())
		if err != nil {
			return nil, err
		}
		if ok {
			fields[f.Name] = f
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return fields, nil
}

// parseFieldLine handles lines such as
//
//	field:pid_t parent_pid;	offset:24;	size:4;	signed:1;
func parseFieldLine(line string) (Field, bool, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "field:") {
		return Field{}, false, nil
	}

	var f Field
	for _, part := range strings.Split(line, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		switch key {
		case "field":
			decl := strings.Fields(value)
			if len(decl) == 0 {
				return Field{}, false, fmt.Errorf("empty field declaration in %q", line)
			}
			name := decl[len(decl)-1]
			if i := strings.IndexByte(name, '['); i >= 0 {
				name = name[:i]
			}
			f.Name = name
		case "offset", "size":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Field{}, false, fmt.Errorf("bad %s in %q: %w", key, line, err)
			}
			if key == "offset" {
				f.Offset = n
			} else {
				f.Size = n
			}
		}
	}
	return f, f.Name != "", nil
}

// ForkFormatFrom extracts the fork offsets from parsed fields.
func ForkFormatFrom(fields map[string]Field) (ForkFormat, error) {
	parent, ok := fields["parent_pid"]
	if !ok {
		return ForkFormat{}, errors.New("parent_pid field missing")
	}
	child, ok := fields["child_pid"]
	if !ok {
		return ForkFormat{}, errors.New("child_pid field missing")
	}
	if parent.Size != 4 || child.Size != 4 {
		return ForkFormat{}, fmt.Errorf("unexpected pid field sizes %d/%d", parent.Size, child.Size)
	}
	return ForkFormat{ParentPID: parent.Offset, ChildPID: child.Offset}, nil
}

// ReadForkFormat locates and parses the sched_process_fork format file.
func ReadForkFormat() (ForkFormat, error) {
	var errs []error
	for _, root := range TracefsRoots {
		path := filepath.Join(root, "events", "sched", "sched_process_fork", "format")
		format, err := readForkFormatFile(path)
		if err == nil {
			return format, nil
		}
		errs = append(errs, err)
	}
	return ForkFormat{}, fmt.Errorf("reading fork tracepoint format: %w", errors.Join(errs...))
}

func readForkFormatFile(path string) (ForkFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return ForkFormat{}, err
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // read-only
	}()

	fields, err := ParseFields(f)
	if err != nil {
		return ForkFormat{}, fmt.Errorf("%s: %w", path, err)
	}
	format, err := ForkFormatFrom(fields)
	if err != nil {
		return ForkFormat{}, fmt.Errorf("%s: %w", path, err)
	}
	return format, nil
}
