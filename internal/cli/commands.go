package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tracepoint-dashboard-api/internal/analytics"
	"tracepoint-dashboard-api/internal/mockapi"
	"tracepoint-dashboard-api/internal/mockdata"
	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/service"
	"tracepoint-dashboard-api/pkg/validation"
)

func newDevicesCmd(opts *options) *cobra.Command {
	var (
		search, status, sortField, order string
		page, pageSize                   int
	)

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices with their derived status",
		Long: `List devices, optionally filtered by a search term and a status tab.

Examples:
  tracepointctl devices
  tracepointctl devices --status warning --sort cpu --order desc
  tracepointctl devices --search alice --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && status != analytics.StatusAll {
				if _, ok := model.ParseStatus(status); !ok {
					return fmt.Errorf("invalid status %q", status)
				}
			}
			dir, err := analytics.ParseDirection(order, analytics.Asc)
			if err != nil {
				return err
			}

			svc, err := opts.dashboard(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			list, err := svc.ListDevices(cmd.Context(), service.DeviceListQuery{
				Filter:    analytics.DeviceFilter{Search: search, Status: status},
				SortField: sortField,
				Direction: dir,
				Page:      page,
				PageSize:  pageSize,
			})
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), list.State, list.Message, list)
			}
			renderDevices(cmd.OutOrStdout(), list)
			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "Match computer name, user or device id")
	cmd.Flags().StringVar(&status, "status", "", "Status tab (online, warning, error, offline)")
	cmd.Flags().StringVar(&sortField, "sort", service.DefaultDevicesSort,
		"Sort field ("+strings.Join(analytics.DeviceSortFields, ", ")+")")
	cmd.Flags().StringVar(&order, "order", "asc", "Sort order (asc or desc)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "Devices per page")
	return cmd
}

func newDeviceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "device <device-id>",
		Short: "Show one device with its history and crashes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.dashboard(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			detail, err := svc.DeviceDetail(cmd.Context(), args[0])
			if errors.Is(err, service.ErrDeviceNotFound) {
				return fmt.Errorf("device %s not found", args[0])
			}
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), "", "", detail)
			}
			renderDeviceDetail(cmd.OutOrStdout(), detail)
			return nil
		},
	}
}

func newCrashesCmd(opts *options) *cobra.Command {
	var (
		days              int
		search, sortField string
		order             string
	)

	cmd := &cobra.Command{
		Use:   "crashes",
		Short: "Aggregate crashes by source",
		Long: `Show crash events of the lookback window grouped by source.

Examples:
  tracepointctl crashes
  tracepointctl crashes --days 7 --search explorer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateDays(days); err != nil {
				return err
			}
			dir, err := analytics.ParseDirection(order, analytics.Desc)
			if err != nil {
				return err
			}

			svc, err := opts.dashboard(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := svc.CrashAnalysis(cmd.Context(), service.CrashQuery{
				Days:      days,
				Filter:    search,
				SortField: sortField,
				Direction: dir,
			})
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), a.State, a.Message, a)
			}
			renderCrashAnalysis(cmd.OutOrStdout(), a)
			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", service.DefaultLookbackDays, "Lookback window in days")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Match source, message, device or user")
	cmd.Flags().StringVar(&sortField, "sort", service.DefaultCrashesSort,
		"Sort field ("+strings.Join(analytics.CrashSortFields, ", ")+")")
	cmd.Flags().StringVar(&order, "order", "desc", "Sort order (asc or desc)")
	return cmd
}

func newTrendsCmd(opts *options) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show daily usage and crash trends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateDays(days); err != nil {
				return err
			}
			svc, err := opts.dashboard(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			t, err := svc.Trends(cmd.Context(), days)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), t.State, t.Message, t)
			}
			renderTrends(cmd.OutOrStdout(), t)
			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", service.DefaultLookbackDays, "Lookback window in days")
	return cmd
}

func newOverviewCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Summarize the fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.dashboard(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			o, err := svc.Overview(cmd.Context())
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), o.State, o.Message, o)
			}
			renderOverview(cmd.OutOrStdout(), o)
			return nil
		},
	}
}

func newMockAPICmd(opts *options) *cobra.Command {
	var (
		addr          string
		devices, days int
		seed          int64
	)

	cmd := &cobra.Command{
		Use:   "mock-api",
		Short: "Serve a generated fleet as a telemetry API",
		Long: `Serve a deterministic, generated fleet over the telemetry API endpoints so
the dashboard can run without a real telemetry service.

Examples:
  tracepointctl mock-api --addr :9090 --devices 25
  UPSTREAM_API_URL=http://localhost:9090 tracepointctl devices`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if devices < 1 || days < 1 {
				return fmt.Errorf("--devices and --days must be at least 1")
			}
			log := opts.logger(cmd.ErrOrStderr())
			fleet := mockdata.NewGenerator(seed, time.Now()).Fleet(devices, days)

			server := &http.Server{
				Addr:              addr,
				Handler:           mockapi.New(fleet, log),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serveUntilDone(cmd.Context(), server, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Serving %d devices with %d days of history on %s\n", devices, days, addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9090", "Listen address")
	cmd.Flags().IntVar(&devices, "devices", 25, "Number of devices")
	cmd.Flags().IntVar(&days, "days", 14, "Days of history per device")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Generator seed")
	return cmd
}

// serveUntilDone runs server until ctx is cancelled, then shuts it down.
func serveUntilDone(ctx context.Context, server *http.Server, started func()) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	started()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version)
				return
			}
			fmt.Fprintf(out, "tracepointctl %s\n", formatVersion(version))
			fmt.Fprintf(out, "commit: %s\n", commit)
			fmt.Fprintf(out, "built: %s\n", date)
			fmt.Fprintf(out, "go: %s\n", runtime.Version())
			fmt.Fprintf(out, "os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}

// formatVersion ensures version has a 'v' prefix for display
func formatVersion(v string) string {
	if v == "" || v == "dev" {
		return v
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}
