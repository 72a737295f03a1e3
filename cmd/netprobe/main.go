package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bmops/provisioner/internal/lg"
	"github.com/bmops/provisioner/pkg/execx"
	"github.com/bmops/provisioner/pkg/fault"
	"github.com/bmops/provisioner/pkg/netroute"
	"github.com/bmops/provisioner/pkg/retry"
)

// netprobe prints the local address the OS would use to reach a host, or
// the default-routed IP when no host is given.
func main() {
	host := flag.String("host", "", "remote host to resolve a source address for")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall retry budget")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := lg.New(&lg.Config{ServiceName: "netprobe", Debug: *debug, Format: "console"})
	defer logger.Sync()

	resolver := netroute.NewResolver(execx.NewRunner(logger), logger)

	// Route lookups right after interface bring-up are flaky; retry them
	// within the budget.
	policy := retry.Policy{
		Timeout:  *timeout,
		Kinds:    []fault.Kind{fault.RouteNotFound},
		MaxSleep: 5 * time.Second,
		Log:      logger,
	}

	var addr string
	err := policy.Do(context.Background(), func() error {
		var err error
		if *host == "" {
			addr, err = resolver.DefaultRoutedIP()
		} else {
			addr, err = resolver.Resolve(*host)
		}
		return err
	})
	if err != nil {
		logger.Error("resolution failed", lg.Err(err))
		os.Exit(1)
	}
	fmt.Println(addr)
}
