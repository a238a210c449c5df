package timesync

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statSample = `cpu  2255 34 2290 22625563 6290 127 456 0 0 0
cpu0 1132 34 1441 11311718 3675 127 438 0 0 0
intr 114930548 113199788 3 0 5 263 0 4 [... lots more numbers ...]
ctxt 1990473
btime 1062191376
processes 2915
procs_running 1
`

func TestReadBootTime(t *testing.T) {
	got, err := ReadBootTime(strings.NewReader(statSample))
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Unix(1062191376, 0)))
}

func TestReadBootTime_Missing(t *testing.T) {
	_, err := ReadBootTime(strings.NewReader("cpu 1 2 3\n"))
	assert.ErrorIs(t, err, errNoBootTime)
}

func TestReadBootTime_Garbage(t *testing.T) {
	_, err := ReadBootTime(strings.NewReader("btime soon\n"))
	assert.Error(t, err)
}

func TestNewConverter_FromProcRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "stat"), []byte(statSample), 0o644))

	c, err := NewConverter(root)
	require.NoError(t, err)
	assert.False(t, c.Estimated())
	assert.True(t, c.BootTime().Equal(time.Unix(1062191376, 0)))
}

func TestNewConverter_FallsBackToUptime(t *testing.T) {
	c, err := NewConverter(t.TempDir())
	require.NoError(t, err)
	assert.True(t, c.Estimated())
	assert.False(t, c.BootTime().After(time.Now()))
}

func TestToWallClock(t *testing.T) {
	boot := time.Unix(1000000000, 0)
	c := NewConverterAt(boot)

	tests := []struct {
		name  string
		nanos uint64
		want  time.Time
	}{
		{"zero", 0, boot},
		{"one second", 1_000_000_000, boot.Add(time.Second)},
		{"mixed", 123_456_789_000, boot.Add(123*time.Second + 456*time.Millisecond + 789*time.Microsecond)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, c.ToWallClock(tt.nanos).Equal(tt.want))
		})
	}
}
