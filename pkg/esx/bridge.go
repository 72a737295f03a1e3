// Package esx drives the remote hypervisor management CLI. It composes the
// command runner and the table parser with a per-endpoint thumbprint cache:
// <tool> -s <host> -u <user> [-d <thumbprint>] <args...>, password passed
// through the environment, wall clock bounded by the external timeout
// wrapper binary.
package esx

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bmops/provisioner/internal/lg"
	"github.com/bmops/provisioner/pkg/execx"
	"github.com/bmops/provisioner/pkg/fault"
	"github.com/bmops/provisioner/pkg/tabular"
)

// passwordMask replaces the password in every diagnostic message.
const passwordMask = "*****"

// An untrusted endpoint rejects the probe and prints its certificate
// thumbprint in the error text.
var thumbprintPattern = regexp.MustCompile(`thumbprint: (\S+) \(not`)

type commandRunner interface {
	Execute(program string, args []string, env map[string]string) (*execx.CommandResult, error)
}

// Options carries the tool paths and conventions the bridge needs.
type Options struct {
	CLI         string // management CLI binary
	TimeoutTool string // external per-invocation timeout wrapper
	PasswordVar string // environment variable carrying the password
}

// Bridge invokes the remote CLI for endpoints. Invocations pass through a
// circuit breaker so a dead endpoint fails fast instead of burning the
// timeout budget on every call.
type Bridge struct {
	runner  commandRunner
	log     lg.Logger
	opts    Options
	breaker *gobreaker.CircuitBreaker
}

func NewBridge(runner commandRunner, log lg.Logger, opts Options) *Bridge {
	if opts.PasswordVar == "" {
		opts.PasswordVar = "VI_PASSWORD"
	}
	cbs := gobreaker.Settings{
		Name:     "remote-cli",
		Interval: 1 * time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	return &Bridge{
		runner:  runner,
		log:     log,
		opts:    opts,
		breaker: gobreaker.NewCircuitBreaker(cbs),
	}
}

// Invoke runs one CLI command against ep and parses the fixed-width table
// it prints.
func (b *Bridge) Invoke(ep *Endpoint, timeout time.Duration, args ...string) ([]tabular.Record, error) {
	out, err := b.InvokeRaw(ep, timeout, args...)
	if err != nil {
		return nil, err
	}
	return tabular.Parse(out)
}

// InvokeRaw runs one CLI command against ep and returns stdout verbatim,
// for callers that want the unparsed text.
func (b *Bridge) InvokeRaw(ep *Endpoint, timeout time.Duration, args ...string) (string, error) {
	thumbprint, err := b.thumbprint(ep, timeout)
	if err != nil {
		return "", err
	}

	argv := []string{
		timeoutSeconds(timeout),
		b.opts.CLI, "-s", ep.Host, "-u", ep.User, "-d", thumbprint,
	}
	argv = append(argv, args...)

	res, err := b.execute(ep, b.opts.TimeoutTool, argv)
	if err != nil {
		return "", err
	}
	if res.ExitStatus != 0 {
		return "", fault.New(fault.Execution, "%s failed: %s", b.describe(ep, thumbprint, args), res)
	}
	return res.Stdout, nil
}

// thumbprint returns the endpoint's cached thumbprint, probing for it on
// first use. The probe runs behind the timeout wrapper like any other
// invocation, so a hung endpoint cannot block the first call forever. The
// cache is filled only on success, so a failed probe is retried by the
// next invocation.
func (b *Bridge) thumbprint(ep *Endpoint, timeout time.Duration) (string, error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.thumbprint != "" {
		return ep.thumbprint, nil
	}

	argv := []string{timeoutSeconds(timeout), b.opts.CLI, "-s", ep.Host, "-u", ep.User}
	res, err := b.execute(ep, b.opts.TimeoutTool, argv)
	if err != nil {
		return "", err
	}
	m := thumbprintPattern.FindStringSubmatch(res.Stdout + res.Stderr)
	if m == nil {
		return "", fault.New(fault.Thumbprint, "no thumbprint in probe output for %s: %s", ep.Host, res)
	}

	ep.thumbprint = m[1]
	b.log.Debug("thumbprint cached",
		lg.String("host", ep.Host),
		lg.String("thumbprint", ep.thumbprint))
	return ep.thumbprint, nil
}

// execute runs one spawn through the breaker with the endpoint's password
// injected via the environment.
func (b *Bridge) execute(ep *Endpoint, program string, args []string) (*execx.CommandResult, error) {
	env := map[string]string{b.opts.PasswordVar: ep.Password}
	out, err := b.breaker.Execute(func() (any, error) {
		return b.runner.Execute(program, args, env)
	})
	if err != nil {
		return nil, err
	}
	return out.(*execx.CommandResult), nil
}

// timeoutSeconds renders the wrapper's budget in whole seconds, rounding
// up. The wrapper treats 0 as "no limit", so anything below one second
// still becomes 1.
func timeoutSeconds(timeout time.Duration) string {
	secs := int((timeout + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// describe renders the invocation for diagnostics, password masked.
func (b *Bridge) describe(ep *Endpoint, thumbprint string, args []string) string {
	parts := []string{b.opts.CLI, "-s", ep.Host, "-u", ep.User, "-d", thumbprint}
	parts = append(parts, args...)
	return strings.Join(parts, " ") + " (" + b.opts.PasswordVar + "=" + passwordMask + ")"
}
