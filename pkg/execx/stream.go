package execx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bmops/provisioner/internal/lg"
	"github.com/bmops/provisioner/pkg/fault"
)

// maxLineBytes bounds a single scanned output line. Playbook runs can emit
// very long JSON lines.
const maxLineBytes = 1024 * 1024

// StreamRunner executes a long-running tool and writes both of its output
// streams to a log file as lines arrive, instead of buffering everything
// in memory.
//
// Draining one stream to completion before touching the other deadlocks as
// soon as the child blocks writing to the unread stream; the runner
// therefore consumes both streams concurrently at line granularity, which
// also keeps near-chronological ordering for line-oriented tools.
type StreamRunner struct {
	log lg.Logger
}

func NewStreamRunner(log lg.Logger) *StreamRunner {
	return &StreamRunner{log: log}
}

// Run spawns program and appends every stdout and stderr line to the file
// at outputPath, flushing per line. It fails with an execution fault
// referencing outputPath iff the exit status is non-zero.
func (s *StreamRunner) Run(ctx context.Context, program string, args []string, env map[string]string, outputPath string) error {
	out, err := os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fault.Wrap(fault.Execution, err, "cannot open output file %s", outputPath)
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Env = buildEnv(env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fault.Wrap(fault.Spawn, err, "stdout pipe for %s", program)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fault.Wrap(fault.Spawn, err, "stderr pipe for %s", program)
	}

	if err := cmd.Start(); err != nil {
		return fault.Wrap(fault.Spawn, err, "cannot launch %s", program)
	}

	runID := uuid.New().String()
	logger := s.log.With(
		lg.String("run", runID),
		lg.String("program", program),
		lg.String("output", outputPath))
	logger.Info("streaming run started", lg.Int("pid", cmd.Process.Pid))

	// Writes go straight to the file descriptor, one line per write, so
	// every line is on disk before the next read.
	var mu sync.Mutex
	writeLine := func(line string) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := out.WriteString(line + "\n")
		return err
	}

	// Banner line ties the file content back to the structured logs.
	if err := writeLine(fmt.Sprintf("--- run %s: %s", runID, commandLine(program, args))); err != nil {
		cmd.Wait()
		return fault.Wrap(fault.Execution, err, "writing %s", outputPath)
	}

	g := new(errgroup.Group)
	g.Go(func() error { return s.drain(logger, "stdout", stdout, writeLine) })
	g.Go(func() error { return s.drain(logger, "stderr", stderr, writeLine) })
	if err := g.Wait(); err != nil {
		// The output file went bad; the child still has to be reaped.
		cmd.Wait()
		return fault.Wrap(fault.Execution, err, "writing %s", outputPath)
	}

	exitStatus := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fault.Wrap(fault.Execution, err, "waiting on %s", program)
		}
		exitStatus = exitErr.ExitCode()
	}
	logger.Info("streaming run finished", lg.Int("exitStatus", exitStatus))

	if exitStatus != 0 {
		return fault.New(fault.Execution, "%s exited with status %d, see %s",
			commandLine(program, args), exitStatus, outputPath)
	}
	return nil
}

// drain copies one stream line by line until end-of-stream. A read error
// drops only this stream: it is logged and swallowed so that draining of
// the other stream is never aborted. Only write failures propagate.
func (s *StreamRunner) drain(logger lg.Logger, name string, rd io.Reader, writeLine func(string) error) error {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := writeLine(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("stream read failed", lg.String("stream", name), lg.Err(err))
		// Keep consuming the broken stream unseen; a child blocked on a
		// full pipe would otherwise stall the sibling stream and the wait.
		io.Copy(io.Discard, rd)
	}
	return nil
}
