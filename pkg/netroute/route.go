// Package netroute answers one question: which local address would this
// host use to reach a given remote? It polls the OS routing table through
// the ip tool rather than guessing from interface state.
package netroute

import (
	"net"
	"strings"
	"time"

	"github.com/bmops/provisioner/internal/lg"
	"github.com/bmops/provisioner/pkg/execx"
	"github.com/bmops/provisioner/pkg/fault"
)

type commandRunner interface {
	Execute(program string, args []string, env map[string]string) (*execx.CommandResult, error)
	MustExecute(program string, args []string, env map[string]string) (*execx.CommandResult, error)
}

// Resolver queries the routing table for source addresses. Attempts and
// Interval default to 10 polls one second apart, which rides out transient
// unavailability right after an interface comes up.
type Resolver struct {
	runner commandRunner
	log    lg.Logger

	IPTool   string
	PingTool string
	Attempts int
	Interval time.Duration
}

func NewResolver(runner commandRunner, log lg.Logger) *Resolver {
	return &Resolver{
		runner:   runner,
		log:      log,
		IPTool:   "ip",
		PingTool: "ping",
		Attempts: 10,
		Interval: time.Second,
	}
}

// Resolve returns the local source address the OS would use to reach
// host. The host is first resolved to a concrete address, then the
// routing table is polled until a route with a "src" token shows up.
func (r *Resolver) Resolve(host string) (string, error) {
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return "", fault.Wrap(fault.RouteNotFound, err, "cannot resolve %s", host)
	}
	addr := addrs[0]

	for attempt := 1; attempt <= r.Attempts; attempt++ {
		res, err := r.runner.Execute(r.IPTool, []string{"route", "get", addr}, nil)
		if err == nil && res.ExitStatus == 0 {
			if src, ok := sourceAddress(res.Stdout); ok {
				return src, nil
			}
		}
		r.logTable(addr, attempt)
		time.Sleep(r.Interval)
	}
	return "", fault.New(fault.RouteNotFound, "no route with a source address to %s (host %s) after %d attempts",
		addr, host, r.Attempts)
}

// DefaultRoutedIP returns the address this host would use to reach the
// internet: the source address of the route towards the default gateway.
func (r *Resolver) DefaultRoutedIP() (string, error) {
	res, err := r.runner.MustExecute(r.IPTool, []string{"route", "show", "default"}, nil)
	if err != nil {
		return "", err
	}
	gateway, ok := gatewayAddress(res.Stdout)
	if !ok {
		return "", fault.New(fault.RouteNotFound, "no default gateway in %q", res.Stdout)
	}
	return r.Resolve(gateway)
}

// Reachable reports whether host answers a single ping.
func (r *Resolver) Reachable(host string) bool {
	res, err := r.runner.Execute(r.PingTool, []string{"-c", "1", "-W", "1", host}, nil)
	return err == nil && res.ExitStatus == 0
}

// logTable dumps the full routing table for diagnosis of a failed poll.
func (r *Resolver) logTable(addr string, attempt int) {
	table := ""
	if res, err := r.runner.Execute(r.IPTool, []string{"route"}, nil); err == nil {
		table = res.Stdout
	}
	r.log.Info("no source route yet",
		lg.String("address", addr),
		lg.Int("attempt", attempt),
		lg.String("routes", table))
}

// sourceAddress scans route output for the token following "src".
func sourceAddress(out string) (string, bool) {
	fields := strings.Fields(out)
	for i, f := range fields {
		if f == "src" && i+1 < len(fields) {
			return fields[i+1], true
		}
	}
	return "", false
}

// gatewayAddress scans default-route output for the token following "via".
func gatewayAddress(out string) (string, bool) {
	fields := strings.Fields(out)
	for i, f := range fields {
		if f == "via" && i+1 < len(fields) {
			return fields[i+1], true
		}
	}
	return "", false
}
