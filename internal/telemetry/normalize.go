package telemetry

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tracepoint-dashboard-api/internal/model"
)

// number accepts a JSON number, a numeric string or null.
type number struct {
	Value float64
	Valid bool
}

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(unq), "%"))
		if s == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	n.Value, n.Valid = v, true
	return nil
}

type wireDisk struct {
	Used       number `json:"used"`
	Total      number `json:"total"`
	Percentage number `json:"percentage"`
}

type wirePerformance struct {
	CPU  number          `json:"cpu"`
	RAM  number          `json:"ram"`
	Disk json.RawMessage `json:"disk"`
}

// wireRecord is the union of every field name the telemetry API has used for
// device and log records.
type wireRecord struct {
	DeviceID     string            `json:"deviceId"`
	RowKey       string            `json:"rowKey"`
	ComputerName string            `json:"computerName"`
	LoggedOnUser string            `json:"loggedOnUser"`
	LoggedUser   string            `json:"loggedUser"`
	OSVersion    string            `json:"osVersion"`
	Timestamp    string            `json:"timestamp"`
	LastSeen     string            `json:"lastSeen"`
	CPU          number            `json:"cpu"`
	RAM          number            `json:"ram"`
	Disk         json.RawMessage   `json:"disk"`
	DiskUsing    number            `json:"diskUsing"`
	CrashCount   number            `json:"crashCount"`
	CrashesCnt   number            `json:"crashesCnt"`
	Performance  *wirePerformance  `json:"performance"`
	Crashes      []json.RawMessage `json:"crashes"`
	File         string            `json:"file"`
	PayloadURL   string            `json:"payloadUrl"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp returns the zero time for values it cannot parse.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// decodeDisk handles both {used,total,percentage} and a bare percentage.
func decodeDisk(raw json.RawMessage, fallbackPct number) model.Disk {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var wd wireDisk
		if err := json.Unmarshal(raw, &wd); err == nil {
			d := model.NewDisk(wd.Used.Value, wd.Total.Value)
			if !wd.Total.Valid || wd.Total.Value <= 0 {
				if wd.Percentage.Valid {
					d.Percentage = model.ClampPercent(wd.Percentage.Value)
				} else if fallbackPct.Valid {
					d.Percentage = model.ClampPercent(fallbackPct.Value)
				}
			}
			return d
		}
	}
	if len(raw) > 0 {
		var n number
		if err := json.Unmarshal(raw, &n); err == nil && n.Valid {
			return model.Disk{Percentage: model.ClampPercent(n.Value)}
		}
	}
	if fallbackPct.Valid {
		return model.Disk{Percentage: model.ClampPercent(fallbackPct.Value)}
	}
	return model.Disk{}
}

func pickNumber(values ...number) number {
	for _, v := range values {
		if v.Valid {
			return v
		}
	}
	return number{}
}

// normalize converts one wire record into canonical form. The second value
// is false when the record carries no identifier at all.
func (w wireRecord) normalize() (model.DeviceRecord, bool) {
	id := firstNonEmpty(w.DeviceID, w.RowKey)
	if id == "" {
		return model.DeviceRecord{}, false
	}

	cpu, ram := w.CPU, w.RAM
	diskRaw := w.Disk
	if w.Performance != nil {
		cpu = pickNumber(cpu, w.Performance.CPU)
		ram = pickNumber(ram, w.Performance.RAM)
		if len(bytes.TrimSpace(diskRaw)) == 0 {
			diskRaw = w.Performance.Disk
		}
	}

	crashes := pickNumber(w.CrashCount, w.CrashesCnt)
	crashCount := len(w.Crashes)
	if crashes.Valid {
		crashCount = int(crashes.Value)
	}
	if crashCount < 0 {
		crashCount = 0
	}

	return model.DeviceRecord{
		DeviceID:     id,
		ComputerName: strings.TrimSpace(w.ComputerName),
		LoggedOnUser: firstNonEmpty(w.LoggedOnUser, w.LoggedUser),
		OSVersion:    strings.TrimSpace(w.OSVersion),
		Timestamp:    parseTimestamp(firstNonEmpty(w.Timestamp, w.LastSeen)),
		CPU:          model.ClampPercent(cpu.Value),
		RAM:          model.ClampPercent(ram.Value),
		Disk:         decodeDisk(diskRaw, w.DiskUsing),
		CrashCount:   crashCount,
		PayloadURL:   firstNonEmpty(w.PayloadURL, w.File),
	}, true
}

// normalizeDevices converts wire records to DeviceRecords, returning the
// number of records dropped for lacking an identifier.
func normalizeDevices(records []wireRecord) ([]model.DeviceRecord, int) {
	out := make([]model.DeviceRecord, 0, len(records))
	dropped := 0
	for _, r := range records {
		n, ok := r.normalize()
		if !ok {
			dropped++
			continue
		}
		out = append(out, n)
	}
	return out, dropped
}

// normalizeLogs converts wire records to LogEntries. deviceID fills records
// that omit their own identifier, since log listings are already per device.
func normalizeLogs(records []wireRecord, deviceID string) ([]model.LogEntry, int) {
	out := make([]model.LogEntry, 0, len(records))
	dropped := 0
	for _, r := range records {
		if firstNonEmpty(r.DeviceID, r.RowKey) == "" {
			r.DeviceID = deviceID
		}
		d, ok := r.normalize()
		if !ok {
			dropped++
			continue
		}
		out = append(out, model.LogEntry{
			DeviceID:     d.DeviceID,
			ComputerName: d.ComputerName,
			LoggedOnUser: d.LoggedOnUser,
			OSVersion:    d.OSVersion,
			Timestamp:    d.Timestamp,
			CPU:          d.CPU,
			RAM:          d.RAM,
			Disk:         d.Disk,
			CrashCount:   d.CrashCount,
			PayloadURL:   d.PayloadURL,
		})
	}
	return out, dropped
}
