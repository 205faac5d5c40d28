// Package mockdata generates a synthetic device fleet with telemetry history
// for demos, tests and the mock upstream server.
package mockdata

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"tracepoint-dashboard-api/internal/model"
)

// Users are the logged on accounts assigned to generated devices.
var Users = []string{
	`CORP\j.doe`,
	`CORP\a.smith`,
	`CORP\m.johnson`,
	`CORP\r.williams`,
	`CORP\l.brown`,
	`CORP\p.davis`,
	`CORP\c.miller`,
	`CORP\admin`,
}

// ComputerPrefixes and Departments compose generated computer names.
var (
	ComputerPrefixes = []string{"LAPTOP-", "DESKTOP-", "WORKSTATION-", "DEV-", "QA-", "PROD-"}
	Departments      = []string{"IT", "ENG", "HR", "FIN", "MKT", "SALES", "EXEC", "R&D"}
)

// OSVersions is weighted towards desktop editions.
var OSVersions = []string{
	"Windows 11", "Windows 11", "Windows 11",
	"Windows 10", "Windows 10",
	"Windows Server 2019", "Windows Server 2022",
}

// CrashSources and CrashMessages are the crash catalogues.
var (
	CrashSources = []string{
		"Application Error",
		"Windows Error Reporting",
		"BugCheck",
		"Service Control Manager",
		".NET Runtime",
		"Application Hang",
	}
	CrashMessages = []string{
		"Faulting module: example.exe",
		"The application stopped responding",
		"Access violation in module ntdll.dll",
		"The process terminated unexpectedly",
		"Unhandled exception in kernel32.dll",
		"Failed with HRESULT: 0x8007FFFF",
		"Stack overflow in iexplore.exe",
		"Out of memory in chrome.exe",
	}
)

// Device is one generated machine: its identity and one payload per day of
// history, oldest first. The last snapshot is its current status.
type Device struct {
	DeviceID     string
	ComputerName string
	LoggedOnUser string
	OSVersion    string
	History      []model.Payload
}

// Latest returns the most recent snapshot.
func (d Device) Latest() model.Payload {
	return d.History[len(d.History)-1]
}

// Record projects the latest snapshot onto a DeviceRecord.
func (d Device) Record() model.DeviceRecord {
	return d.Snapshot(len(d.History) - 1)
}

// Snapshot projects history entry i onto a DeviceRecord. PayloadURL names the
// file the mock upstream serves the raw payload under.
func (d Device) Snapshot(i int) model.DeviceRecord {
	p := d.History[i]
	return model.DeviceRecord{
		DeviceID:     d.DeviceID,
		ComputerName: d.ComputerName,
		LoggedOnUser: p.LoggedOnUser,
		OSVersion:    d.OSVersion,
		Timestamp:    p.Timestamp,
		CPU:          p.Performance.CPU,
		RAM:          p.Performance.RAM,
		Disk:         model.NewDisk(p.Performance.Disk.Used, p.Performance.Disk.Total),
		CrashCount:   len(p.Crashes),
		PayloadURL:   PayloadFile(d.DeviceID, i),
	}
}

// PayloadFile is the blob path of history entry i of a device.
func PayloadFile(deviceID string, i int) string {
	return fmt.Sprintf("telemetry/%s/%03d.json", deviceID, i)
}

// Generator produces deterministic fleets for a given seed. It is not safe
// for concurrent use.
type Generator struct {
	rng *rand.Rand
	now time.Time
}

// NewGenerator creates a generator whose "today" is now, truncated to the
// second.
func NewGenerator(seed int64, now time.Time) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
		now: now.UTC().Truncate(time.Second),
	}
}

func (g *Generator) pick(values []string) string {
	return values[g.rng.Intn(len(values))]
}

// GUID returns a random version 4 UUID drawn from the generator's source.
func (g *Generator) GUID() string {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ComputerName returns a name like LAPTOP-ENG07.
func (g *Generator) ComputerName() string {
	return fmt.Sprintf("%s%s%02d", g.pick(ComputerPrefixes), g.pick(Departments), g.rng.Intn(100))
}

// Crash returns a crash at a random time of day.
func (g *Generator) Crash(day time.Time) model.PayloadCrash {
	day = day.UTC()
	at := time.Date(day.Year(), day.Month(), day.Day(), g.rng.Intn(24), g.rng.Intn(60), 0, 0, time.UTC)
	return model.PayloadCrash{
		EventID:   1000 + g.rng.Intn(100),
		Timestamp: at,
		Source:    g.pick(CrashSources),
		Message:   g.pick(CrashMessages),
	}
}

// Telemetry returns one snapshot payload taken at instant at.
func (g *Generator) Telemetry(deviceID, computerName, user string, at time.Time) model.Payload {
	total := float64(256 + g.rng.Intn(5)*256)
	used := float64(int(total * (20 + g.rng.Float64()*60) / 100))

	crashCount := 0
	if g.rng.Float64() > 0.8 {
		crashCount = g.rng.Intn(3)
	}
	crashes := make([]model.PayloadCrash, 0, crashCount)
	for i := 0; i < crashCount; i++ {
		c := g.Crash(at)
		if c.Timestamp.After(at) {
			c.Timestamp = at
		}
		crashes = append(crashes, c)
	}

	return model.Payload{
		DeviceID:     deviceID,
		ComputerName: computerName,
		LoggedOnUser: user,
		Timestamp:    at.UTC(),
		Performance: model.Performance{
			CPU:  5 + g.rng.Intn(70),
			RAM:  10 + g.rng.Intn(70),
			Disk: model.PayloadDisk{Used: used, Total: total},
		},
		Crashes: crashes,
	}
}

// Device generates a device with historyDays daily snapshots. One device in
// ten was last seen up to 29 days ago.
func (g *Generator) Device(historyDays int) Device {
	if historyDays < 1 {
		historyDays = 1
	}
	d := Device{
		DeviceID:     g.GUID(),
		ComputerName: g.ComputerName(),
		LoggedOnUser: g.pick(Users),
		OSVersion:    g.pick(OSVersions),
	}

	lastSeen := g.now.Add(-time.Duration(g.rng.Intn(6*60)) * time.Minute)
	if g.rng.Float64() > 0.9 {
		lastSeen = lastSeen.AddDate(0, 0, -g.rng.Intn(30))
	}

	d.History = make([]model.Payload, 0, historyDays)
	for i := historyDays - 1; i >= 0; i-- {
		at := lastSeen.AddDate(0, 0, -i)
		d.History = append(d.History, g.Telemetry(d.DeviceID, d.ComputerName, d.LoggedOnUser, at))
	}
	return d
}

// Fleet generates count devices.
func (g *Generator) Fleet(count, historyDays int) []Device {
	devices := make([]Device, 0, count)
	for i := 0; i < count; i++ {
		devices = append(devices, g.Device(historyDays))
	}
	return devices
}

// Records projects every device onto its current DeviceRecord.
func Records(devices []Device) []model.DeviceRecord {
	out := make([]model.DeviceRecord, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Record())
	}
	return out
}
