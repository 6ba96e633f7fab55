package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaykit/relay/internal/config"
	"github.com/relaykit/relay/internal/logging"
	"github.com/relaykit/relay/internal/protocol"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("relayd version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "serve":
		runServe(os.Args[2:])
	case "versions":
		runVersions(os.Args[2:], os.Stdout)
	case "version":
		fmt.Printf("relayd version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: relayd <command> [options]

Commands:
  serve       Start the status and metrics endpoints for the version registry
  versions    Print the supported protocol versions
  version     Print version information

Run 'relayd <command> --help' for more information on a command.`)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	statusAddr := fs.String("status-addr", "", "Override status endpoint address (e.g., :8080)")
	metricsAddr := fs.String("metrics-addr", "", "Override metrics endpoint address (e.g., :9090)")

	fs.Usage = func() {
		fmt.Println(`Usage: relayd serve [options]

Start the relay status surface.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *statusAddr != "" {
		cfg.Server.StatusAddr = *statusAddr
	}
	if *metricsAddr != "" {
		cfg.Observability.MetricsAddr = *metricsAddr
	}

	logger := logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	defer logger.Sync()

	relay, err := NewRelay(RelayOptions{
		Config:   cfg,
		Logger:   logger,
		Registry: protocol.NewDefaultRegistry(),
		Version:  version,
	})
	if err != nil {
		logger.Errorf("failed to create relay", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := relay.Start(ctx); err != nil {
		logger.Errorf("failed to start relay", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	sig := <-sigCh
	logger.Infof("received shutdown signal", map[string]any{"signal": sig.String()})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := relay.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	logger.Info("relay shutdown complete")
}

func runVersions(args []string, out io.Writer) {
	fs := flag.NewFlagSet("versions", flag.ExitOnError)
	downstream := fs.Bool("downstream", false, "Print the downstream protocol version instead")
	verbose := fs.Bool("v", false, "Print protocol numbers alongside labels")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	printVersions(out, protocol.NewDefaultRegistry(), *downstream, *verbose)
}

func printVersions(out io.Writer, r *protocol.Registry, downstream, verbose bool) {
	if downstream {
		if verbose {
			fmt.Fprintf(out, "%d\t%s\n", r.DownstreamVersion(), r.DownstreamLabel())
			return
		}
		fmt.Fprintln(out, r.DownstreamVersionsString())
		return
	}

	if !verbose {
		fmt.Fprintln(out, r.SupportedVersionsString())
		return
	}
	latest := r.Default().Version
	for _, d := range r.AllSupported() {
		marker := ""
		if d.Version == latest {
			marker = "\t(default)"
		}
		fmt.Fprintf(out, "%d\t%s%s\n", d.Version, d.Label, marker)
	}
}
