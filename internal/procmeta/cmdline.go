package procmeta

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const pathSeparator = '/'

// CommandLine is the invocation recorded for a process: the invocation path
// followed by its arguments.
type CommandLine struct {
	Args []string
}

// Empty reports whether no token could be recovered.
func (c CommandLine) Empty() bool {
	return len(c.Args) == 0
}

// IsPath reports whether the first token is an absolute invocation path.
func (c CommandLine) IsPath() bool {
	return len(c.Args) > 0 && strings.HasPrefix(c.Args[0], string(pathSeparator))
}

// Basename is the part of the first token after its last separator, or the
// whole first token when it is not a path.
func (c CommandLine) Basename() string {
	if len(c.Args) == 0 {
		return ""
	}
	first := c.Args[0]
	if !c.IsPath() {
		return first
	}
	return first[strings.LastIndexByte(first, pathSeparator)+1:]
}

// Candidates lists the names checked against the exemption list, in order:
// the basename, then, when the first token is a path, every
// whitespace-delimited word of the remaining tokens.
func (c CommandLine) Candidates() []string {
	if len(c.Args) == 0 {
		return nil
	}

	var names []string
	if base := c.Basename(); base != "" {
		names = append(names, base)
	}
	if !c.IsPath() {
		return names
	}
	for _, arg := range c.Args[1:] {
		names = append(names, strings.Fields(arg)...)
	}
	return names
}

// Full returns the tokens joined by single spaces.
func (c CommandLine) Full() string {
	return strings.Join(c.Args, " ")
}

// Extract reads the command line of pid. The result is empty when the record
// cannot be opened, which usually means the process already exited.
func (fs FS) Extract(pid int) CommandLine {
	f, err := os.Open(fs.CmdlinePath(pid))
	if err != nil {
		return CommandLine{}
	}
	defer f.Close()

	return CommandLine{Args: ParseCmdline(f)}
}

// ParseCmdline splits a NUL-delimited record into tokens. The terminator after
// the last token produces no extra token; a final token without terminator is
// kept. A read error ends the record early.
func ParseCmdline(r io.Reader) []string {
	br := bufio.NewReader(r)
	var args []string
	for {
		token, err := br.ReadBytes(0)
		if err != nil {
			if len(token) > 0 {
				args = append(args, string(token))
			}
			return args
		}
		args = append(args, string(token[:len(token)-1]))
	}
}
