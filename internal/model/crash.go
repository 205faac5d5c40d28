package model

import "time"

// CrashEvent is one recorded application or system failure on a device.
type CrashEvent struct {
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	User       string    `json:"user"`
	Source     string    `json:"source"`
	EventID    int       `json:"eventId"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// PayloadCrash is a crash as it appears inside a raw snapshot payload.
type PayloadCrash struct {
	EventID   int       `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// Performance is the metrics block of a raw snapshot payload.
type Performance struct {
	CPU  int         `json:"cpu"`
	RAM  int         `json:"ram"`
	Disk PayloadDisk `json:"disk"`
}

// PayloadDisk is the disk block of a raw snapshot payload.
type PayloadDisk struct {
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// Payload is the raw JSON blob stored for one telemetry snapshot.
type Payload struct {
	DeviceID     string         `json:"deviceId"`
	ComputerName string         `json:"computerName"`
	LoggedOnUser string         `json:"loggedOnUser"`
	Timestamp    time.Time      `json:"timestamp"`
	Performance  Performance    `json:"performance"`
	Crashes      []PayloadCrash `json:"crashes"`
}

// CrashEvents attaches device context to the payload's crashes.
func (p Payload) CrashEvents(deviceID, deviceName, user string) []CrashEvent {
	events := make([]CrashEvent, 0, len(p.Crashes))
	for _, c := range p.Crashes {
		events = append(events, CrashEvent{
			DeviceID:   deviceID,
			DeviceName: deviceName,
			User:       user,
			Source:     c.Source,
			EventID:    c.EventID,
			Message:    c.Message,
			Timestamp:  c.Timestamp,
		})
	}
	return events
}
