package model

import (
	"math"
	"time"
)

// Status is the derived health classification of a device.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Thresholds used by DeriveStatus.
const (
	OfflineAfterDays = 5
	UsageWarningPct  = 90
)

// AllStatuses lists statuses in the order the dashboard tabs show them.
var AllStatuses = []Status{StatusOnline, StatusWarning, StatusError, StatusOffline}

// ParseStatus returns the status named by s. The second value is false for
// anything that is not one of the four statuses.
func ParseStatus(s string) (Status, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Disk holds disk capacity in GB and the derived usage percentage.
type Disk struct {
	Used       float64 `json:"used"`
	Total      float64 `json:"total"`
	Percentage int     `json:"percentage"`
}

// NewDisk builds a Disk and derives its usage percentage.
func NewDisk(used, total float64) Disk {
	return Disk{Used: used, Total: total, Percentage: DiskPercentage(used, total)}
}

// DiskPercentage returns floor(used/total*100), or 0 when total is not positive.
func DiskPercentage(used, total float64) int {
	if total <= 0 {
		return 0
	}
	return ClampPercent(math.Floor(used / total * 100))
}

// ClampPercent rounds v and clamps it to 0..100.
func ClampPercent(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	r := int(math.Round(v))
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

// DeviceRecord is a snapshot of one monitored endpoint's identity and latest metrics.
// Status is deliberately absent; use DeriveStatus.
type DeviceRecord struct {
	DeviceID     string    `json:"deviceId"`
	ComputerName string    `json:"computerName"`
	LoggedOnUser string    `json:"loggedOnUser"`
	OSVersion    string    `json:"osVersion"`
	Timestamp    time.Time `json:"timestamp"`
	CPU          int       `json:"cpu"`
	RAM          int       `json:"ram"`
	Disk         Disk      `json:"disk"`
	CrashCount   int       `json:"crashCount"`
	PayloadURL   string    `json:"payloadUrl,omitempty"`
}

// DeriveStatus classifies a device from its last-seen age, crash count and usage.
func DeriveStatus(lastSeen time.Time, crashCount, cpu, ram, diskPct int, now time.Time) Status {
	if lastSeen.IsZero() || daysBetween(lastSeen, now) > OfflineAfterDays {
		return StatusOffline
	}
	if crashCount > 0 {
		return StatusError
	}
	if cpu > UsageWarningPct || ram > UsageWarningPct || diskPct > UsageWarningPct {
		return StatusWarning
	}
	return StatusOnline
}

// Status derives the record's status at instant now.
func (d DeviceRecord) Status(now time.Time) Status {
	return DeriveStatus(d.Timestamp, d.CrashCount, d.CPU, d.RAM, d.Disk.Percentage, now)
}

// View attaches the derived status for rendering.
func (d DeviceRecord) View(now time.Time) DeviceView {
	return DeviceView{DeviceRecord: d, Status: d.Status(now)}
}

// DeviceView is a DeviceRecord with its status computed at response time.
type DeviceView struct {
	DeviceRecord
	Status Status `json:"status"`
}

// Views converts records into views at instant now.
func Views(devices []DeviceRecord, now time.Time) []DeviceView {
	out := make([]DeviceView, len(devices))
	for i, d := range devices {
		out[i] = d.View(now)
	}
	return out
}

// daysBetween returns the number of whole 24h periods from then to now.
func daysBetween(then, now time.Time) int {
	return int(math.Floor(now.Sub(then).Hours() / 24))
}

// LogEntry is one historical snapshot of a device.
type LogEntry struct {
	DeviceID     string    `json:"deviceId"`
	ComputerName string    `json:"computerName"`
	LoggedOnUser string    `json:"loggedOnUser"`
	OSVersion    string    `json:"osVersion,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	CPU          int       `json:"cpu"`
	RAM          int       `json:"ram"`
	Disk         Disk      `json:"disk"`
	CrashCount   int       `json:"crashCount"`
	PayloadURL   string    `json:"payloadUrl,omitempty"`
}
