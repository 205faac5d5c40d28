package mockapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracepoint-dashboard-api/internal/mockdata"
	"tracepoint-dashboard-api/internal/telemetry"
)

func setup(t *testing.T) (*Server, *telemetry.Client, []mockdata.Device) {
	t.Helper()
	fleet := mockdata.NewGenerator(11, time.Now()).Fleet(12, 3)
	srv := New(fleet, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	cfg := telemetry.DefaultConfig(ts.URL)
	cfg.RetryAttempts = 0
	return srv, telemetry.NewClient(cfg, nil), fleet
}

func TestDevices_RoundTripsThroughClient(t *testing.T) {
	_, client, fleet := setup(t)

	res := client.Devices(context.Background(), telemetry.DeviceQuery{})
	require.Equal(t, telemetry.StateOK, res.State)
	require.Len(t, res.Items, len(fleet))

	for i, got := range res.Items {
		want := fleet[i].Record()
		assert.Equal(t, want.DeviceID, got.DeviceID)
		assert.Equal(t, want.ComputerName, got.ComputerName)
		assert.Equal(t, want.LoggedOnUser, got.LoggedOnUser)
		assert.Equal(t, want.CPU, got.CPU)
		assert.Equal(t, want.Disk.Percentage, got.Disk.Percentage)
		assert.Equal(t, want.CrashCount, got.CrashCount)
		assert.True(t, want.Timestamp.Equal(got.Timestamp))
	}
}

func TestDevices_HonoursQuery(t *testing.T) {
	_, client, fleet := setup(t)
	target := fleet[3]

	name := strings.ToLower(target.ComputerName)
	res := client.Devices(context.Background(), telemetry.DeviceQuery{ComputerName: name})
	require.False(t, res.Failed())
	for _, d := range res.Items {
		assert.Contains(t, strings.ToLower(d.ComputerName), name)
	}

	res = client.Devices(context.Background(), telemetry.DeviceQuery{DeviceID: target.DeviceID})
	require.Len(t, res.Items, 1)
	assert.Equal(t, target.DeviceID, res.Items[0].DeviceID)

	future := time.Now().Add(24 * time.Hour)
	res = client.Devices(context.Background(), telemetry.DeviceQuery{DateFrom: future})
	assert.Equal(t, telemetry.StateEmpty, res.State)
}

func TestDeviceLogsAndPayload(t *testing.T) {
	_, client, fleet := setup(t)
	d := fleet[0]

	logs := client.DeviceLogs(context.Background(), d.DeviceID)
	require.Equal(t, telemetry.StateOK, logs.State)
	require.Len(t, logs.Items, len(d.History))
	assert.Equal(t, mockdata.PayloadFile(d.DeviceID, len(d.History)-1), logs.Items[0].PayloadURL, "newest first")

	p, err := client.Payload(context.Background(), logs.Items[0].PayloadURL)
	require.NoError(t, err)
	assert.Equal(t, d.DeviceID, p.DeviceID)
	assert.Equal(t, len(d.Latest().Crashes), len(p.Crashes))

	unknown := client.DeviceLogs(context.Background(), "nope")
	assert.Equal(t, telemetry.StateEmpty, unknown.State)

	_, err = client.Payload(context.Background(), "missing.json")
	require.Error(t, err)
}

func TestFailWith(t *testing.T) {
	srv, client, _ := setup(t)
	srv.FailWith(http.StatusBadGateway)

	res := client.Devices(context.Background(), telemetry.DeviceQuery{})
	require.True(t, res.Failed())
	assert.Equal(t, "telemetry service returned status 502", res.Reason())

	srv.FailWith(0)
	res = client.Devices(context.Background(), telemetry.DeviceQuery{})
	assert.False(t, res.Failed())
}

func TestHead(t *testing.T) {
	_, client, _ := setup(t)
	assert.True(t, client.IsHealthy(context.Background()))
}
