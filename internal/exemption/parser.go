package exemption

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// LineBufferSize is the parser's working buffer. A line, terminator included,
// must fit in it.
const LineBufferSize = 128

const (
	commentMarker = '#'
	exactMarker   = '!'
)

type parseState int

const (
	stateNormal parseState = iota
	// stateAwaitingContinuation discards chunks until the terminator of an
	// over-long line has been consumed.
	stateAwaitingContinuation
)

// Parse reads every valid entry from r in file order.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	err := scan(r, func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries, err
}

// scan feeds valid entries to fn until fn returns false or input ends.
func scan(r io.Reader, fn func(Entry) bool) error {
	// Hide any buffering r already has so the line limit stays LineBufferSize.
	br := bufio.NewReaderSize(struct{ io.Reader }{r}, LineBufferSize)
	state := stateNormal

	for {
		chunk, err := br.ReadSlice('\n')
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			state = stateAwaitingContinuation
			continue
		case errors.Is(err, io.EOF):
			// Whatever is left has no terminator.
			return nil
		case err != nil:
			return err
		}

		if state == stateAwaitingContinuation {
			state = stateNormal
			continue
		}

		entry, ok := parseLine(chunk)
		if !ok {
			continue
		}
		if !fn(entry) {
			return nil
		}
	}
}

// parseLine turns one terminated line into an entry.
// Blank lines, comments and a bare "!" yield ok=false.
func parseLine(raw []byte) (Entry, bool) {
	line := strings.TrimRight(string(raw[:len(raw)-1]), " \t\r")
	if line == "" || line[0] == commentMarker {
		return Entry{}, false
	}

	if line[0] == exactMarker {
		pattern := line[1:]
		if pattern == "" {
			return Entry{}, false
		}
		return Entry{Pattern: pattern, Mode: ModeExact}, true
	}

	return Entry{Pattern: line, Mode: ModeSubstring}, true
}
