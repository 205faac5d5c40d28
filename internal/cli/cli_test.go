package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracepoint-dashboard-api/internal/mockapi"
	"tracepoint-dashboard-api/internal/mockdata"
	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/service"
	"tracepoint-dashboard-api/internal/telemetry"
)

func mockUpstream(t *testing.T) (*mockapi.Server, string, []mockdata.Device) {
	t.Helper()
	fleet := mockdata.NewGenerator(7, time.Now()).Fleet(6, 3)
	srv := mockapi.New(fleet, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts.URL, fleet
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDevicesCommand_Table(t *testing.T) {
	_, url, fleet := mockUpstream(t)

	out, err := run(t, "devices", "--api", url)
	require.NoError(t, err)

	assert.Contains(t, out, "6 devices")
	assert.Contains(t, out, "COMPUTER")
	for _, d := range fleet {
		assert.Contains(t, out, d.ComputerName)
	}
}

func TestDevicesCommand_JSON(t *testing.T) {
	_, url, fleet := mockUpstream(t)

	out, err := run(t, "devices", "--api", url, "--json", "--sort", "cpu", "--order", "desc")
	require.NoError(t, err)

	var env struct {
		Success bool               `json:"success"`
		State   string             `json:"state"`
		Data    service.DeviceList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.True(t, env.Success)
	assert.Equal(t, string(telemetry.StateOK), env.State)
	require.Len(t, env.Data.Devices, len(fleet))
	for i := 1; i < len(env.Data.Devices); i++ {
		assert.GreaterOrEqual(t, env.Data.Devices[i-1].CPU, env.Data.Devices[i].CPU)
	}
}

func TestDevicesCommand_UpstreamFailure(t *testing.T) {
	srv, url, _ := mockUpstream(t)
	srv.FailWith(http.StatusServiceUnavailable)

	out, err := run(t, "devices", "--api", url, "--json", "--timeout", "2s")
	require.NoError(t, err)

	var env JSONEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.False(t, env.Success)
	assert.Equal(t, string(telemetry.StateFailed), env.State)
	assert.True(t, strings.HasPrefix(env.Message, "Failed to load devices: "), env.Message)
}

func TestDevicesCommand_RejectsBadFlags(t *testing.T) {
	_, url, _ := mockUpstream(t)

	_, err := run(t, "devices", "--api", url, "--status", "sleeping")
	assert.Error(t, err)

	_, err = run(t, "devices", "--api", url, "--order", "sideways")
	assert.Error(t, err)
}

func TestCommands_RequireAPI(t *testing.T) {
	t.Setenv("UPSTREAM_API_URL", "")

	_, err := run(t, "overview")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--api")
}

func TestDeviceCommand(t *testing.T) {
	_, url, fleet := mockUpstream(t)
	target := fleet[2]

	out, err := run(t, "device", target.DeviceID, "--api", url)
	require.NoError(t, err)
	assert.Contains(t, out, target.ComputerName)
	assert.Contains(t, out, "SNAPSHOT")

	_, err = run(t, "device", "3f2b9c1e-8a4d-4f7e-9b21-000000000000", "--api", url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = run(t, "device", "not-a-guid", "--api", url)
	assert.Error(t, err)
}

func TestCrashesCommand(t *testing.T) {
	_, url, _ := mockUpstream(t)

	out, err := run(t, "crashes", "--api", url, "--days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Crashes in the last 7 days")

	_, err = run(t, "crashes", "--api", url, "--days", "0")
	assert.Error(t, err)
}

func TestOverviewAndTrendsCommands(t *testing.T) {
	_, url, _ := mockUpstream(t)

	out, err := run(t, "overview", "--api", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Fleet overview")
	assert.Contains(t, out, "Windows 11")

	out, err = run(t, "trends", "--api", url, "--days", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Trends over the last 5 days")
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tracepointctl v1.2.3")
	assert.Contains(t, out, "commit: abc123")

	out, err = run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]column{{"NAME", 6}, {"N", 2}}, [][]string{{"alpha", "1"}, {"beta", "22"}}, nil)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4, "header, separator and two rows")
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[2], "alpha")
	assert.Contains(t, lines[3], "22")
	for _, line := range lines[1:] {
		assert.Equal(t, lipgloss.Width(lines[0]), lipgloss.Width(line))
	}
}

func TestRenderTable_TruncatesWideCells(t *testing.T) {
	out := renderTable([]column{{"NAME", 6}, {"N", 2}}, [][]string{{"日本語のコンピューター", "1"}, {"abcdefgh", "2"}}, nil)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)

	assert.Contains(t, lines[2], "…")
	assert.Contains(t, lines[3], "abcde…")
	assert.NotContains(t, lines[3], "abcdefgh")
	for _, line := range lines[1:] {
		assert.Equal(t, lipgloss.Width(lines[0]), lipgloss.Width(line), "rows keep the column layout")
	}
	assert.LessOrEqual(t, lipgloss.Width(lines[2]), 6+1+2+1)
}

func TestStatusStyle(t *testing.T) {
	assert.Equal(t, successStyle.GetForeground(), statusStyle(model.StatusOnline).GetForeground())
	assert.Equal(t, errorStyle.GetForeground(), statusStyle(model.StatusError).GetForeground())
	assert.Equal(t, mutedStyle.GetForeground(), statusStyle(model.StatusOffline).GetForeground())
}

func TestRenderBar(t *testing.T) {
	bar := renderBar(5, 10, 10)
	assert.Equal(t, 5, strings.Count(bar, "█"))
	assert.Equal(t, 5, strings.Count(bar, "░"))
	assert.True(t, strings.HasSuffix(bar, " 5"))
}
