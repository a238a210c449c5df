package exemption

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

// DefaultPath is where administrators keep the exemption list.
const DefaultPath = "/etc/oom_whitelist"

// Store answers exemption queries against a file on disk.
// It holds no parsed state; every query opens the file again.
type Store struct {
	path  string
	audit *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithAudit records every checked name and every match on l.
func WithAudit(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.audit = l
		}
	}
}

// NewStore returns a store reading the list at path.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:  path,
		audit: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the exemption file location.
func (s *Store) Path() string {
	return s.path
}

// IsExempt reports whether name matches an entry of the list.
// A missing or unreadable file means no exemptions.
func (s *Store) IsExempt(name string) bool {
	if name == "" {
		return false
	}

	f, err := os.Open(s.path)
	if err != nil {
		return false
	}
	defer f.Close()

	s.audit.Info("checking for proc/flag name", zap.String("name", name))

	var (
		matched Entry
		found   bool
	)
	err = scan(f, func(e Entry) bool {
		if e.Matches(name) {
			matched, found = e, true
			return false
		}
		return true
	})
	if err != nil {
		s.audit.Warn("exemption list read failed", zap.String("path", s.path), zap.Error(err))
	}
	if !found {
		return false
	}

	if matched.Mode == ModeExact {
		s.audit.Info("proc/arg name is whitelisted, fully matched entry",
			zap.String("name", name), zap.String("entry", matched.Pattern))
	} else {
		s.audit.Info("proc/arg name is whitelisted due to substring matching",
			zap.String("name", name), zap.String("entry", matched.Pattern))
	}
	return true
}

// Entries returns the valid entries of the list in file order.
// A missing file yields no entries and no error.
func (s *Store) Entries() ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening exemption list: %w", err)
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("reading exemption list %s: %w", s.path, err)
	}
	return entries, nil
}
