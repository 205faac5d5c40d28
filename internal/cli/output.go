package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"

	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/service"
	"tracepoint-dashboard-api/internal/telemetry"
)

// ANSI palette
const (
	colorSuccess lipgloss.Color = "2"
	colorError   lipgloss.Color = "1"
	colorWarning lipgloss.Color = "3"
	colorPrimary lipgloss.Color = "7"
	colorMuted   lipgloss.Color = "8"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).PaddingRight(1)
	cellStyle    = lipgloss.NewStyle().PaddingRight(1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
)

// statusStyle colors a device status the way the dashboard badges do.
func statusStyle(s model.Status) lipgloss.Style {
	switch s {
	case model.StatusOnline:
		return successStyle
	case model.StatusWarning:
		return warningStyle
	case model.StatusError:
		return errorStyle
	default:
		return mutedStyle
	}
}

// JSONEnvelope wraps --json output in a consistent structure.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	State   string      `json:"state,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w io.Writer, state telemetry.State, message string, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(JSONEnvelope{
		Success: state != telemetry.StateFailed,
		State:   string(state),
		Message: message,
		Data:    data,
	})
}

// column is a table column. Cells wider than width are truncated.
type column struct {
	title string
	width int
}

// renderTable renders rows under a header line. style, when non-nil, colors
// individual data cells.
func renderTable(columns []column, rows [][]string, style func(row, col int) lipgloss.Style) string {
	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = c.title
	}
	body := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(columns))
		for j, c := range columns {
			if j < len(row) {
				cells[j] = ansi.Truncate(row[j], c.width, "…")
			}
		}
		body[i] = cells
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		Headers(headers...).
		Rows(body...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if style != nil {
				return style(row, col).PaddingRight(1)
			}
			return cellStyle
		})
	return t.Render() + "\n"
}

// stateLine renders the message of an empty or failed view.
func stateLine(state telemetry.State, message string) string {
	if state == telemetry.StateFailed {
		return errorStyle.Render(message) + "\n"
	}
	return mutedStyle.Render(message) + "\n"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func renderDevices(w io.Writer, list *service.DeviceList) {
	c := list.Counts
	fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
		titleStyle.Render(fmt.Sprintf("%d devices", c.Total)),
		successStyle.Render(fmt.Sprintf("%d online", c.Online)),
		warningStyle.Render(fmt.Sprintf("%d warning", c.Warning)),
		errorStyle.Render(fmt.Sprintf("%d error", c.Error)),
		mutedStyle.Render(fmt.Sprintf("%d offline", c.Offline)),
	)
	if list.State != telemetry.StateOK {
		fmt.Fprint(w, stateLine(list.State, list.Message))
		return
	}

	columns := []column{
		{"STATUS", 8}, {"COMPUTER", 18}, {"USER", 14}, {"OS", 12},
		{"CPU", 4}, {"RAM", 4}, {"DISK", 4}, {"CRASHES", 7}, {"LAST SEEN", 16},
	}
	rows := make([][]string, 0, len(list.Devices))
	for _, d := range list.Devices {
		rows = append(rows, []string{
			string(d.Status), d.ComputerName, d.LoggedOnUser, d.OSVersion,
			fmt.Sprintf("%d%%", d.CPU), fmt.Sprintf("%d%%", d.RAM), fmt.Sprintf("%d%%", d.Disk.Percentage),
			fmt.Sprintf("%d", d.CrashCount), formatTime(d.Timestamp),
		})
	}
	fmt.Fprint(w, renderTable(columns, rows, func(row, col int) lipgloss.Style {
		if col == 0 {
			return statusStyle(list.Devices[row].Status)
		}
		return lipgloss.NewStyle()
	}))
	if len(list.Devices) < list.Total {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("showing %d of %d", len(list.Devices), list.Total)))
	}
}

func renderDeviceDetail(w io.Writer, detail *service.DeviceDetail) {
	d := detail.Device
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render(d.ComputerName), statusStyle(d.Status).Render(string(d.Status)))
	fmt.Fprintf(w, "  %-10s %s\n", "Device", d.DeviceID)
	fmt.Fprintf(w, "  %-10s %s\n", "User", d.LoggedOnUser)
	fmt.Fprintf(w, "  %-10s %s\n", "OS", d.OSVersion)
	fmt.Fprintf(w, "  %-10s %s\n", "Last seen", formatTime(d.Timestamp))
	fmt.Fprintf(w, "  %-10s CPU %d%%  RAM %d%%  Disk %d%% (%.1f/%.1f GB)\n", "Usage",
		d.CPU, d.RAM, d.Disk.Percentage, d.Disk.Used, d.Disk.Total)

	for _, warn := range detail.Warnings {
		fmt.Fprintln(w, warningStyle.Render("! "+warn))
	}

	if len(detail.Recent) > 0 {
		fmt.Fprintln(w)
		rows := make([][]string, 0, len(detail.Recent))
		for _, e := range detail.Recent {
			rows = append(rows, []string{
				formatTime(e.Timestamp), fmt.Sprintf("%d%%", e.CPU), fmt.Sprintf("%d%%", e.RAM),
				fmt.Sprintf("%d%%", e.Disk.Percentage), fmt.Sprintf("%d", e.CrashCount),
			})
		}
		fmt.Fprint(w, renderTable([]column{
			{"SNAPSHOT", 16}, {"CPU", 4}, {"RAM", 4}, {"DISK", 4}, {"CRASHES", 7},
		}, rows, nil))
	}

	if len(detail.Crashes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprint(w, renderCrashEvents(detail.Crashes))
	}
}

func renderCrashEvents(events []model.CrashEvent) string {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{formatTime(e.Timestamp), fmt.Sprintf("%d", e.EventID), e.Source, e.DeviceName, e.Message})
	}
	return renderTable([]column{
		{"TIME", 16}, {"EVENT", 5}, {"SOURCE", 18}, {"DEVICE", 16}, {"MESSAGE", 40},
	}, rows, func(row, col int) lipgloss.Style {
		if col == 2 {
			return errorStyle
		}
		return lipgloss.NewStyle()
	})
}

func renderCrashAnalysis(w io.Writer, a *service.CrashAnalysis) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Crashes in the last %d days: %d on %d devices",
		a.Days, a.Report.TotalCrashes, a.Report.AffectedDevices)))
	if a.State != telemetry.StateOK {
		fmt.Fprint(w, stateLine(a.State, a.Message))
		return
	}

	rows := make([][]string, 0, len(a.Report.Groups))
	for _, g := range a.Report.Groups {
		rows = append(rows, []string{g.Source, fmt.Sprintf("%d", g.Occurrences), fmt.Sprintf("%d", g.Devices)})
	}
	fmt.Fprint(w, renderTable([]column{{"SOURCE", 24}, {"CRASHES", 7}, {"DEVICES", 7}}, rows, nil))
	fmt.Fprintln(w)
	fmt.Fprint(w, renderCrashEvents(a.Report.Events))
}

func renderTrends(w io.Writer, t *service.TrendReport) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Trends over the last %d days", t.Days)))
	if t.State != telemetry.StateOK {
		fmt.Fprint(w, stateLine(t.State, t.Message))
		return
	}

	rows := make([][]string, 0, len(t.Daily))
	for _, d := range t.Daily {
		rows = append(rows, []string{
			d.Date, fmt.Sprintf("%d", d.Devices), fmt.Sprintf("%d%%", d.AvgCPU),
			fmt.Sprintf("%d%%", d.AvgRAM), fmt.Sprintf("%d%%", d.AvgDisk), fmt.Sprintf("%d", d.CrashCount),
		})
	}
	fmt.Fprint(w, renderTable([]column{
		{"DAY", 10}, {"DEVICES", 7}, {"CPU", 4}, {"RAM", 4}, {"DISK", 4}, {"CRASHES", 7},
	}, rows, nil))
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("avg CPU %d%%  avg RAM %d%%  avg disk %d%%  crashes %d",
		t.Totals.AvgCPU, t.Totals.AvgRAM, t.Totals.AvgDisk, t.Totals.TotalCrashes)))
}

func renderOverview(w io.Writer, o *service.OverviewReport) {
	if o.State == telemetry.StateFailed {
		fmt.Fprint(w, stateLine(o.State, o.Message))
		return
	}
	s := o.Summary
	fmt.Fprintln(w, titleStyle.Render("Fleet overview"))
	fmt.Fprintf(w, "  %-16s %d\n", "Devices", s.TotalDevices)
	fmt.Fprintf(w, "  %-16s %d (%d%%)\n", "Connected today", s.ConnectedToday, s.ConnectedTodayPercent)
	fmt.Fprintf(w, "  %-16s %d\n", "Offline", s.Offline)
	fmt.Fprintf(w, "  %-16s %s\n", "Crashes", errorStyle.Render(fmt.Sprintf("%d", s.TotalErrors)))
	if s.LatestDevice != nil {
		fmt.Fprintf(w, "  %-16s %s at %s\n", "Latest", s.LatestDevice.ComputerName, formatTime(s.LatestDevice.Timestamp))
	}
	if o.State == telemetry.StateEmpty {
		fmt.Fprint(w, stateLine(o.State, o.Message))
		return
	}

	fmt.Fprintln(w)
	for _, b := range s.OSDistribution {
		fmt.Fprintf(w, "  %-16s %s\n", b.Name, renderBar(b.Count, s.TotalDevices, 30))
	}
}

// renderBar draws a proportional bar followed by the count.
func renderBar(n, total, width int) string {
	filled := 0
	if total > 0 {
		filled = n * width / total
	}
	return successStyle.Render(strings.Repeat("█", filled)) +
		mutedStyle.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %d", n)
}
