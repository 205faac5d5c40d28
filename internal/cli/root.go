// Package cli implements tracepointctl, a terminal client for the telemetry
// service. It runs the dashboard views in-process against an upstream URL and
// can serve a generated mock fleet for local development.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tracepoint-dashboard-api/internal/crashes"
	"tracepoint-dashboard-api/internal/logger"
	"tracepoint-dashboard-api/internal/service"
	"tracepoint-dashboard-api/internal/telemetry"
)

// Version information set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersionInfo sets the version information (called from main).
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// options are the persistent flags shared by every command.
type options struct {
	apiURL      string
	timeout     time.Duration
	crashSource string
	jsonOutput  bool
	verbose     bool
}

func (o *options) logger(w io.Writer) logger.Logger {
	if !o.verbose {
		return logger.Noop()
	}
	return logger.New(w, "debug")
}

// dashboard builds an uncached dashboard service against the upstream.
func (o *options) dashboard(stderr io.Writer) (*service.DashboardService, error) {
	if o.apiURL == "" {
		return nil, fmt.Errorf("no telemetry API configured: pass --api or set UPSTREAM_API_URL")
	}
	log := o.logger(stderr)

	cfg := telemetry.DefaultConfig(o.apiURL)
	cfg.Timeout = o.timeout
	client := telemetry.NewClient(cfg, log)

	source, err := crashes.NewSource(o.crashSource, client, log, 4)
	if err != nil {
		return nil, err
	}

	return service.NewDashboardService(client, source, nil, nil, service.DashboardOptions{}, log), nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "tracepointctl",
		Short: "Inspect fleet telemetry from the terminal",
		Long: `tracepointctl queries the telemetry service and renders the same views
the dashboard shows: the device list, device details, crash analysis,
trends and the overview.

Examples:
  tracepointctl devices --status error
  tracepointctl device 3f2b9c1e-8a4d-4f7e-9b21-6c0d5e7a8f90
  tracepointctl crashes --days 7
  tracepointctl mock-api --addr :9090`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api", os.Getenv("UPSTREAM_API_URL"), "Telemetry API base URL")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Upstream request timeout")
	flags.StringVar(&opts.crashSource, "crash-source", crashes.KindPayload, "Crash source (payload or synthetic)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Output JSON instead of tables")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log upstream requests to stderr")

	root.AddCommand(
		newDevicesCmd(opts),
		newDeviceCmd(opts),
		newCrashesCmd(opts),
		newTrendsCmd(opts),
		newOverviewCmd(opts),
		newMockAPICmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		stop()
		os.Exit(1)
	}
}
