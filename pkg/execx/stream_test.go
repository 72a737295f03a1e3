package execx_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmops/provisioner/internal/lg"
	"github.com/bmops/provisioner/pkg/execx"
	"github.com/bmops/provisioner/pkg/fault"
)

func TestStreamCapturesInterleavedStreams(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.log")
	s := execx.NewStreamRunner(lg.Nop())

	script := `
for i in 1 2 3 4 5; do
  echo "out $i"
  echo "err $i" >&2
done`
	err := s.Run(context.Background(), "sh", []string{"-c", script}, nil, logPath)
	require.NoError(t, err)

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	content := string(raw)
	// every line from both streams survives, no loss
	for _, want := range []string{"out 1", "out 5", "err 1", "err 5"} {
		assert.Contains(t, content, want+"\n")
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	// banner line plus ten stream lines
	assert.Len(t, lines, 11)
	assert.True(t, strings.HasPrefix(lines[0], "--- run "), lines[0])
	assert.Contains(t, lines[0], "sh -c")
}

func TestStreamAppendsToExistingLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, os.WriteFile(logPath, []byte("earlier run\n"), 0644))

	s := execx.NewStreamRunner(lg.Nop())
	err := s.Run(context.Background(), "sh", []string{"-c", "echo later run"}, nil, logPath)
	require.NoError(t, err)

	raw, _ := os.ReadFile(logPath)
	content := string(raw)
	assert.True(t, strings.HasPrefix(content, "earlier run\n--- run "), content)
	assert.True(t, strings.HasSuffix(content, "later run\n"), content)
}

func TestStreamReadErrorDropsOnlyThatStream(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.log")
	s := execx.NewStreamRunner(lg.Nop())

	// one stderr line far beyond the scanner's line cap forces a read
	// error on that stream; stdout must keep flowing and the run must
	// still complete
	script := `
head -c 2097152 /dev/zero | tr '\0' x >&2
echo "out 1"
echo "out 2"
echo "out 3"`
	err := s.Run(context.Background(), "sh", []string{"-c", script}, nil, logPath)
	require.NoError(t, err)

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	content := string(raw)
	for _, want := range []string{"out 1", "out 2", "out 3"} {
		assert.Contains(t, content, want+"\n")
	}
	// the oversized stderr line was dropped, not copied
	assert.NotContains(t, content, "xxxxxxxx")
}

func TestStreamFailsOnNonZeroExit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.log")
	s := execx.NewStreamRunner(lg.Nop())

	err := s.Run(context.Background(), "sh", []string{"-c", "echo before failure; exit 2"}, nil, logPath)
	require.Error(t, err)
	kind, _ := fault.KindOf(err)
	assert.Equal(t, fault.Execution, kind)
	// the error points at the log file for diagnosis
	assert.Contains(t, err.Error(), logPath)

	// output written before the failure is still on disk
	raw, _ := os.ReadFile(logPath)
	assert.Contains(t, string(raw), "before failure\n")
}

func TestStreamSpawnFailure(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.log")
	s := execx.NewStreamRunner(lg.Nop())

	err := s.Run(context.Background(), "/nonexistent/tool", nil, nil, logPath)
	require.Error(t, err)
	kind, _ := fault.KindOf(err)
	assert.Equal(t, fault.Spawn, kind)
}

func TestStreamPassesEnvironment(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.log")
	s := execx.NewStreamRunner(lg.Nop())

	err := s.Run(context.Background(), "sh", []string{"-c", `echo "v=$STREAM_VALUE"`},
		map[string]string{"STREAM_VALUE": "yes"}, logPath)
	require.NoError(t, err)

	raw, _ := os.ReadFile(logPath)
	assert.Contains(t, string(raw), "v=yes\n")
}
