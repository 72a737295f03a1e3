package netroute

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmops/provisioner/internal/lg"
	"github.com/bmops/provisioner/pkg/execx"
	"github.com/bmops/provisioner/pkg/fault"
)

// fakeRunner replays canned results keyed by the joined argument list.
type fakeRunner struct {
	results map[string]*execx.CommandResult
	calls   map[string]int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results: map[string]*execx.CommandResult{},
		calls:   map[string]int{},
	}
}

func (f *fakeRunner) key(program string, args []string) string {
	k := program
	for _, a := range args {
		k += " " + a
	}
	return k
}

func (f *fakeRunner) Execute(program string, args []string, env map[string]string) (*execx.CommandResult, error) {
	k := f.key(program, args)
	f.calls[k]++
	if res, ok := f.results[k]; ok {
		return res, nil
	}
	return &execx.CommandResult{ExitStatus: 1}, nil
}

func (f *fakeRunner) MustExecute(program string, args []string, env map[string]string) (*execx.CommandResult, error) {
	res, err := f.Execute(program, args, env)
	if err != nil {
		return nil, err
	}
	if res.ExitStatus != 0 {
		return nil, fault.New(fault.Execution, "command failed")
	}
	return res, nil
}

func testResolver(runner *fakeRunner) *Resolver {
	r := NewResolver(runner, lg.Nop())
	r.Interval = time.Millisecond
	return r
}

func TestResolveFindsSourceAddress(t *testing.T) {
	runner := newFakeRunner()
	runner.results["ip route get 127.0.0.1"] = &execx.CommandResult{
		Stdout: "local 127.0.0.1 dev lo src 10.0.0.5 uid 0\n    cache <local>\n",
	}

	src, err := testResolver(runner).Resolve("127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", src)
	assert.Equal(t, 1, runner.calls["ip route get 127.0.0.1"])
}

func TestResolveExhaustsAttempts(t *testing.T) {
	runner := newFakeRunner()
	// route exists but never carries a src token
	runner.results["ip route get 127.0.0.1"] = &execx.CommandResult{
		Stdout: "127.0.0.1 via 192.168.0.1 dev eth0\n",
	}
	runner.results["ip route"] = &execx.CommandResult{
		Stdout: "default via 192.168.0.1 dev eth0\n",
	}

	_, err := testResolver(runner).Resolve("127.0.0.1")
	require.Error(t, err)
	kind, _ := fault.KindOf(err)
	assert.Equal(t, fault.RouteNotFound, kind)
	// the failure names the address and the attempt budget
	assert.Contains(t, err.Error(), "127.0.0.1")
	assert.Contains(t, err.Error(), "10 attempts")
	assert.Equal(t, 10, runner.calls["ip route get 127.0.0.1"])
}

func TestResolveUnresolvableHost(t *testing.T) {
	_, err := testResolver(newFakeRunner()).Resolve("definitely-not-a-host.invalid")
	require.Error(t, err)
	kind, _ := fault.KindOf(err)
	assert.Equal(t, fault.RouteNotFound, kind)
}

func TestDefaultRoutedIP(t *testing.T) {
	runner := newFakeRunner()
	runner.results["ip route show default"] = &execx.CommandResult{
		Stdout: "default via 127.0.0.1 dev eth0 proto dhcp\n",
	}
	runner.results["ip route get 127.0.0.1"] = &execx.CommandResult{
		Stdout: "local 127.0.0.1 dev lo src 127.0.0.1 uid 0\n",
	}

	ip, err := testResolver(runner).DefaultRoutedIP()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)
}

func TestDefaultRoutedIPNoGateway(t *testing.T) {
	runner := newFakeRunner()
	runner.results["ip route show default"] = &execx.CommandResult{Stdout: "\n"}

	_, err := testResolver(runner).DefaultRoutedIP()
	require.Error(t, err)
	kind, _ := fault.KindOf(err)
	assert.Equal(t, fault.RouteNotFound, kind)
}

func TestReachable(t *testing.T) {
	runner := newFakeRunner()
	runner.results["ping -c 1 -W 1 10.0.0.9"] = &execx.CommandResult{ExitStatus: 0}

	r := testResolver(runner)
	assert.True(t, r.Reachable("10.0.0.9"))
	assert.False(t, r.Reachable("10.0.0.10"))
}

func TestSourceAddressScanning(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"typical", "10.0.0.0/24 dev eth0 proto kernel scope link src 10.0.0.5", "10.0.0.5", true},
		{"src mid-line", "1.2.3.4 via 10.0.0.1 dev eth0 src 10.0.0.5 uid 0", "10.0.0.5", true},
		{"no src", "1.2.3.4 via 10.0.0.1 dev eth0", "", false},
		{"src is last token", "dangling src", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := sourceAddress(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
