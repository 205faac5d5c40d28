package analytics

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"tracepoint-dashboard-api/internal/model"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts "asc" or "desc" (any case); empty yields def.
func ParseDirection(s string, def Direction) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	default:
		return "", fmt.Errorf("invalid sort direction %q (use asc or desc)", s)
	}
}

// Toggle returns the opposite direction.
func (d Direction) Toggle() Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

func apply(c int, dir Direction) int {
	if dir == Desc {
		return -c
	}
	return c
}

// DeviceSortFields lists the fields SortDevices accepts.
var DeviceSortFields = []string{
	"computerName", "loggedOnUser", "deviceId", "osVersion",
	"timestamp", "cpu", "ram", "disk", "crashCount", "status",
}

// CrashSortFields lists the fields SortCrashEvents accepts.
var CrashSortFields = []string{
	"timestamp", "eventId", "deviceName", "user", "source", "message", "deviceId",
}

// ValidSortField reports whether field is one of fields.
func ValidSortField(fields []string, field string) bool {
	return slices.Contains(fields, field)
}

// statusRank orders statuses from healthiest to least healthy.
func statusRank(s model.Status) int {
	switch s {
	case model.StatusOnline:
		return 0
	case model.StatusWarning:
		return 1
	case model.StatusError:
		return 2
	default:
		return 3
	}
}

func compareTime(a, b time.Time) int {
	return a.Compare(b)
}

// SortDevices returns a sorted copy of devices. Equal keys keep their input
// order in both directions. now is used only for the status field.
func SortDevices(devices []model.DeviceRecord, field string, dir Direction, now time.Time) ([]model.DeviceRecord, error) {
	var less func(a, b model.DeviceRecord) int
	switch field {
	case "computerName":
		less = func(a, b model.DeviceRecord) int { return strings.Compare(a.ComputerName, b.ComputerName) }
	case "loggedOnUser":
		less = func(a, b model.DeviceRecord) int { return strings.Compare(a.LoggedOnUser, b.LoggedOnUser) }
	case "deviceId":
		less = func(a, b model.DeviceRecord) int { return strings.Compare(a.DeviceID, b.DeviceID) }
	case "osVersion":
		less = func(a, b model.DeviceRecord) int { return strings.Compare(a.OSVersion, b.OSVersion) }
	case "timestamp":
		less = func(a, b model.DeviceRecord) int { return compareTime(a.Timestamp, b.Timestamp) }
	case "cpu":
		less = func(a, b model.DeviceRecord) int { return cmp.Compare(a.CPU, b.CPU) }
	case "ram":
		less = func(a, b model.DeviceRecord) int { return cmp.Compare(a.RAM, b.RAM) }
	case "disk":
		less = func(a, b model.DeviceRecord) int { return cmp.Compare(a.Disk.Percentage, b.Disk.Percentage) }
	case "crashCount":
		less = func(a, b model.DeviceRecord) int { return cmp.Compare(a.CrashCount, b.CrashCount) }
	case "status":
		less = func(a, b model.DeviceRecord) int {
			return cmp.Compare(statusRank(a.Status(now)), statusRank(b.Status(now)))
		}
	default:
		return nil, fmt.Errorf("unsupported device sort field %q", field)
	}

	out := append(make([]model.DeviceRecord, 0, len(devices)), devices...)
	slices.SortStableFunc(out, func(a, b model.DeviceRecord) int { return apply(less(a, b), dir) })
	return out, nil
}

// SortCrashEvents returns a sorted copy of events. Timestamps compare as
// instants, eventId numerically and everything else lexicographically. Equal
// keys keep their input order in both directions.
func SortCrashEvents(events []model.CrashEvent, field string, dir Direction) ([]model.CrashEvent, error) {
	var less func(a, b model.CrashEvent) int
	switch field {
	case "timestamp":
		less = func(a, b model.CrashEvent) int { return compareTime(a.Timestamp, b.Timestamp) }
	case "eventId":
		less = func(a, b model.CrashEvent) int { return cmp.Compare(a.EventID, b.EventID) }
	case "deviceName":
		less = func(a, b model.CrashEvent) int { return strings.Compare(a.DeviceName, b.DeviceName) }
	case "user":
		less = func(a, b model.CrashEvent) int { return strings.Compare(a.User, b.User) }
	case "source":
		less = func(a, b model.CrashEvent) int { return strings.Compare(a.Source, b.Source) }
	case "message":
		less = func(a, b model.CrashEvent) int { return strings.Compare(a.Message, b.Message) }
	case "deviceId":
		less = func(a, b model.CrashEvent) int { return strings.Compare(a.DeviceID, b.DeviceID) }
	default:
		return nil, fmt.Errorf("unsupported crash sort field %q", field)
	}

	out := append(make([]model.CrashEvent, 0, len(events)), events...)
	slices.SortStableFunc(out, func(a, b model.CrashEvent) int { return apply(less(a, b), dir) })
	return out, nil
}
