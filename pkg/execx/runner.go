// Package execx runs external tools and captures what they produce.
// It is the only place in the module that spawns subprocesses.
package execx

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/bmops/provisioner/internal/lg"
	"github.com/bmops/provisioner/pkg/fault"
)

// strippedEnv are runtime knobs of this process that must not leak into
// invoked tools.
var strippedEnv = []string{"GODEBUG", "GOGC", "GOMEMLIMIT", "GOTRACEBACK", "GOMAXPROCS"}

// Runner executes a command synchronously, materializing both output
// streams in memory. Stdin stays connected to the null device: callers
// cannot interact with a running child.
type Runner struct {
	log lg.Logger
}

func NewRunner(log lg.Logger) *Runner {
	return &Runner{log: log}
}

// Execute spawns program with args and waits for it. A non-zero exit
// status is not an error; it is returned as data in the result. The only
// error cases are a binary that cannot be launched (spawn fault) or a
// wait that fails outright.
func (r *Runner) Execute(program string, args []string, env map[string]string) (*CommandResult, error) {
	cmd := exec.Command(program, args...)
	cmd.Env = buildEnv(env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fault.Wrap(fault.Spawn, err, "cannot launch %s", program)
	}
	pid := cmd.Process.Pid
	r.log.Debug("command started",
		lg.String("program", program),
		lg.Any("args", args),
		lg.Int("pid", pid))

	exitStatus := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fault.Wrap(fault.Execution, err, "waiting on %s", program)
		}
		exitStatus = exitErr.ExitCode()
	}

	return &CommandResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		Pid:        pid,
		ExitStatus: exitStatus,
	}, nil
}

// MustExecute runs like Execute but treats a non-zero exit status as an
// execution fault embedding the command line and the captured result.
func (r *Runner) MustExecute(program string, args []string, env map[string]string) (*CommandResult, error) {
	res, err := r.Execute(program, args, env)
	if err != nil {
		return nil, err
	}
	if res.ExitStatus != 0 {
		return nil, fault.New(fault.Execution, "command %q failed: %s",
			commandLine(program, args), res)
	}
	return res, nil
}

func commandLine(program string, args []string) string {
	return strings.Join(append([]string{program}, args...), " ")
}

// buildEnv starts from the process environment minus the stripped runtime
// variables, then applies the caller's overrides on top.
func buildEnv(overrides map[string]string) []string {
	env := make([]string, 0, len(os.Environ())+len(overrides))
	for _, kv := range os.Environ() {
		if stripped(kv) {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

func stripped(kv string) bool {
	for _, name := range strippedEnv {
		if strings.HasPrefix(kv, name+"=") {
			return true
		}
	}
	return false
}
