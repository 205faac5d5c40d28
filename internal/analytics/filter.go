// Package analytics holds the pure filter, sort and aggregation functions
// applied to telemetry that has already been fetched. Nothing here performs
// I/O; functions that depend on the current time take it as an argument.
package analytics

import (
	"strings"
	"time"

	"tracepoint-dashboard-api/internal/model"
)

// StatusAll selects every status tab.
const StatusAll = "all"

// DeviceFilter is the fine, client-side device filter. Every non-empty field
// must match; a zero DeviceFilter matches everything.
type DeviceFilter struct {
	DeviceID     string
	ComputerName string
	LoggedUser   string
	// Search matches computer name, logged on user or device id.
	Search   string
	DateFrom time.Time
	DateTo   time.Time
	// Status is a status name, StatusAll or empty.
	Status string
}

// IsZero reports whether the filter matches everything.
func (f DeviceFilter) IsZero() bool {
	return f.DeviceID == "" && f.ComputerName == "" &&
		f.LoggedUser == "" && f.Search == "" &&
		f.DateFrom.IsZero() && f.DateTo.IsZero() &&
		(f.Status == "" || f.Status == StatusAll)
}

// ContainsFold reports whether s contains substr, ignoring case. An empty
// substr matches every s.
func ContainsFold(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// InWindow reports whether t lies in [from, to]. Zero bounds are open.
func InWindow(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

// Match reports whether d passes every filter at instant now.
func (f DeviceFilter) Match(d model.DeviceRecord, now time.Time) bool {
	if !ContainsFold(d.DeviceID, f.DeviceID) ||
		!ContainsFold(d.ComputerName, f.ComputerName) ||
		!ContainsFold(d.LoggedOnUser, f.LoggedUser) {
		return false
	}

	if search := f.Search; search != "" {
		if !ContainsFold(d.ComputerName, search) &&
			!ContainsFold(d.LoggedOnUser, search) &&
			!ContainsFold(d.DeviceID, search) {
			return false
		}
	}

	if !InWindow(d.Timestamp, f.DateFrom, f.DateTo) {
		return false
	}

	if f.Status != "" && f.Status != StatusAll {
		if string(d.Status(now)) != f.Status {
			return false
		}
	}
	return true
}

// FilterDevices returns the devices matching f, in input order. A zero filter
// returns every device.
func FilterDevices(devices []model.DeviceRecord, f DeviceFilter, now time.Time) []model.DeviceRecord {
	out := make([]model.DeviceRecord, 0, len(devices))
	if f.IsZero() {
		return append(out, devices...)
	}
	for _, d := range devices {
		if f.Match(d, now) {
			out = append(out, d)
		}
	}
	return out
}

// FilterCrashEvents keeps events whose device name, user, source or message
// contains text, and whose timestamp is after since. text is matched as
// given, surrounding spaces included. A zero since keeps all timestamps.
func FilterCrashEvents(events []model.CrashEvent, text string, since time.Time) []model.CrashEvent {
	out := make([]model.CrashEvent, 0, len(events))
	for _, e := range events {
		if text != "" &&
			!ContainsFold(e.DeviceName, text) &&
			!ContainsFold(e.User, text) &&
			!ContainsFold(e.Source, text) &&
			!ContainsFold(e.Message, text) {
			continue
		}
		if !since.IsZero() && !e.Timestamp.After(since) {
			continue
		}
		out = append(out, e)
	}
	return out
}
