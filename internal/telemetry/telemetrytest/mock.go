// Package telemetrytest provides a function-field mock of telemetry.API.
package telemetrytest

import (
	"context"
	"sync"

	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/telemetry"
)

// MockAPI is a mock implementation of telemetry.API. Unset functions return
// empty results. Calls are counted per method.
type MockAPI struct {
	// Function fields to set expectations
	DevicesFunc    func(ctx context.Context, q telemetry.DeviceQuery) telemetry.Result[model.DeviceRecord]
	DeviceLogsFunc func(ctx context.Context, deviceID string) telemetry.Result[model.LogEntry]
	PayloadFunc    func(ctx context.Context, file string) (*model.Payload, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ telemetry.API = (*MockAPI)(nil)

func (m *MockAPI) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

// Calls returns how many times method was invoked.
func (m *MockAPI) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockAPI) Devices(ctx context.Context, q telemetry.DeviceQuery) telemetry.Result[model.DeviceRecord] {
	m.record("Devices")
	if m.DevicesFunc != nil {
		return m.DevicesFunc(ctx, q)
	}
	return telemetry.OK[model.DeviceRecord](nil)
}

func (m *MockAPI) DeviceLogs(ctx context.Context, deviceID string) telemetry.Result[model.LogEntry] {
	m.record("DeviceLogs")
	if m.DeviceLogsFunc != nil {
		return m.DeviceLogsFunc(ctx, deviceID)
	}
	return telemetry.OK[model.LogEntry](nil)
}

func (m *MockAPI) Payload(ctx context.Context, file string) (*model.Payload, error) {
	m.record("Payload")
	if m.PayloadFunc != nil {
		return m.PayloadFunc(ctx, file)
	}
	return &model.Payload{}, nil
}
