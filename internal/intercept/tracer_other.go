//go:build !linux

package intercept

import "context"

// Run always fails outside linux.
func (t *Tracer) Run(_ context.Context, _ []string) (int, error) {
	return 1, ErrUnsupported
}
