package execx

import "fmt"

// CommandResult is an immutable snapshot of a finished subprocess.
// Stdout and Stderr are always populated strings, possibly empty, and
// ExitStatus is always the real OS-reported exit code: a result is never
// produced without having waited on the process.
type CommandResult struct {
	Stdout     string
	Stderr     string
	Pid        int
	ExitStatus int
}

func (r *CommandResult) String() string {
	return fmt.Sprintf("exit status %d (pid %d)\nstdout:\n%s\nstderr:\n%s",
		r.ExitStatus, r.Pid, r.Stdout, r.Stderr)
}
