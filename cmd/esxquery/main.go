package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bmops/provisioner/internal/lg"
	"github.com/bmops/provisioner/pkg/config"
	"github.com/bmops/provisioner/pkg/esx"
	"github.com/bmops/provisioner/pkg/execx"
)

// esxquery runs one remote CLI command against an endpoint and prints the
// parsed table. The password comes from the environment, never from argv.
func main() {
	host := flag.String("host", "", "endpoint host")
	user := flag.String("user", "root", "endpoint user")
	cfgPath := flag.String("config", "", "optional config file")
	raw := flag.Bool("raw", false, "print stdout verbatim instead of parsing")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := lg.New(&lg.Config{ServiceName: "esxquery", Debug: *debug, Format: "console"})
	defer logger.Sync()

	if *host == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: esxquery -host <host> [-user <user>] <cli args...>")
		os.Exit(2)
	}

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			logger.Error("cannot load config", lg.Err(err))
			os.Exit(1)
		}
		cfg = loaded
	}

	password := os.Getenv(cfg.PasswordVar)
	if password == "" {
		fmt.Fprintf(os.Stderr, "password expected in %s\n", cfg.PasswordVar)
		os.Exit(2)
	}

	bridge := esx.NewBridge(execx.NewRunner(logger), logger, esx.Options{
		CLI:         cfg.Tools.RemoteCLI,
		TimeoutTool: cfg.Tools.Timeout,
		PasswordVar: cfg.PasswordVar,
	})
	endpoint := &esx.Endpoint{Host: *host, User: *user, Password: password}

	if *raw {
		out, err := bridge.InvokeRaw(endpoint, cfg.InvokeTimeout(), flag.Args()...)
		if err != nil {
			logger.Error("invocation failed", lg.Err(err))
			os.Exit(1)
		}
		fmt.Print(out)
		return
	}

	records, err := bridge.Invoke(endpoint, cfg.InvokeTimeout(), flag.Args()...)
	if err != nil {
		logger.Error("invocation failed", lg.Err(err))
		os.Exit(1)
	}
	for _, rec := range records {
		pairs := make([]string, 0, rec.Len())
		for _, col := range rec.Columns() {
			pairs = append(pairs, fmt.Sprintf("%s=%s", col, rec.Get(col)))
		}
		fmt.Println(strings.Join(pairs, "  "))
	}
}
