package analytics

import (
	"math"
	"slices"
	"time"

	"tracepoint-dashboard-api/internal/model"
)

// TrendPoint is one device snapshot on the overview trend chart.
type TrendPoint struct {
	DeviceID   string `json:"deviceId"`
	CPU        int    `json:"cpu"`
	RAM        int    `json:"ram"`
	Disk       int    `json:"disk"`
	CrashCount int    `json:"crashCount"`
}

// RecentTrend takes the n most recently seen devices and returns them oldest
// first. Values are copied as-is; nothing is smoothed or interpolated.
func RecentTrend(devices []model.DeviceRecord, n int) []TrendPoint {
	if n <= 0 || len(devices) == 0 {
		return []TrendPoint{}
	}
	newest := append(make([]model.DeviceRecord, 0, len(devices)), devices...)
	slices.SortStableFunc(newest, func(a, b model.DeviceRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(newest) > n {
		newest = newest[:n]
	}
	slices.Reverse(newest)

	points := make([]TrendPoint, 0, len(newest))
	for _, d := range newest {
		points = append(points, TrendPoint{
			DeviceID:   d.DeviceID,
			CPU:        d.CPU,
			RAM:        d.RAM,
			Disk:       d.Disk.Percentage,
			CrashCount: d.CrashCount,
		})
	}
	return points
}

// HistoryPoint is one snapshot on a device's history chart.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	CPU       int       `json:"cpu"`
	RAM       int       `json:"ram"`
	Disk      int       `json:"disk"`
	Crashes   int       `json:"crashes"`
}

// HistorySeries converts log entries into chart points in chronological
// order.
func HistorySeries(entries []model.LogEntry) []HistoryPoint {
	sorted := append(make([]model.LogEntry, 0, len(entries)), entries...)
	slices.SortStableFunc(sorted, func(a, b model.LogEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	points := make([]HistoryPoint, 0, len(sorted))
	for _, e := range sorted {
		points = append(points, HistoryPoint{
			Timestamp: e.Timestamp,
			CPU:       e.CPU,
			RAM:       e.RAM,
			Disk:      e.Disk.Percentage,
			Crashes:   e.CrashCount,
		})
	}
	return points
}

// DailyTrend aggregates the devices last seen on one UTC day.
type DailyTrend struct {
	Date       string `json:"date"`
	AvgCPU     int    `json:"avgCpu"`
	AvgRAM     int    `json:"avgRam"`
	AvgDisk    int    `json:"avgDisk"`
	CrashCount int    `json:"crashCount"`
	Devices    int    `json:"devices"`
}

// WeeklyTrend aggregates up to seven consecutive daily trends.
type WeeklyTrend struct {
	Week       string `json:"week"`
	AvgCPU     int    `json:"avgCpu"`
	AvgRAM     int    `json:"avgRam"`
	AvgDisk    int    `json:"avgDisk"`
	CrashCount int    `json:"crashCount"`
}

// TrendTotals is the headline row over a trend window.
type TrendTotals struct {
	AvgCPU       int `json:"avgCpu"`
	AvgRAM       int `json:"avgRam"`
	AvgDisk      int `json:"avgDisk"`
	TotalCrashes int `json:"totalCrashes"`
}

func roundMean(sum, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}

// DailyTrends groups devices by the UTC day of their timestamp within
// [from, to] (zero bounds are open). Only days with data are returned, oldest
// first; missing days are not filled in.
func DailyTrends(devices []model.DeviceRecord, from, to time.Time) []DailyTrend {
	type acc struct{ cpu, ram, disk, crashes, n int }
	days := make(map[string]*acc)
	order := make([]string, 0)

	for _, d := range devices {
		if d.Timestamp.IsZero() || !InWindow(d.Timestamp, from, to) {
			continue
		}
		key := d.Timestamp.UTC().Format(DateLayout)
		a, ok := days[key]
		if !ok {
			a = &acc{}
			days[key] = a
			order = append(order, key)
		}
		a.cpu += d.CPU
		a.ram += d.RAM
		a.disk += d.Disk.Percentage
		a.crashes += d.CrashCount
		a.n++
	}
	slices.Sort(order)

	out := make([]DailyTrend, 0, len(order))
	for _, key := range order {
		a := days[key]
		out = append(out, DailyTrend{
			Date:       key,
			AvgCPU:     roundMean(a.cpu, a.n),
			AvgRAM:     roundMean(a.ram, a.n),
			AvgDisk:    roundMean(a.disk, a.n),
			CrashCount: a.crashes,
			Devices:    a.n,
		})
	}
	return out
}

// WeeklyTrends chunks daily entries into consecutive groups of seven. Each
// week is labelled "<first date> to <last date>"; the final week may be
// shorter.
func WeeklyTrends(daily []DailyTrend) []WeeklyTrend {
	out := make([]WeeklyTrend, 0, (len(daily)+6)/7)
	for chunk := range slices.Chunk(daily, 7) {
		t := TotalsOf(chunk)
		out = append(out, WeeklyTrend{
			Week:       chunk[0].Date + " to " + chunk[len(chunk)-1].Date,
			AvgCPU:     t.AvgCPU,
			AvgRAM:     t.AvgRAM,
			AvgDisk:    t.AvgDisk,
			CrashCount: t.TotalCrashes,
		})
	}
	return out
}

// TotalsOf averages daily means and sums crashes. An empty input yields
// zeros.
func TotalsOf(daily []DailyTrend) TrendTotals {
	var cpu, ram, disk, crashes int
	for _, d := range daily {
		cpu += d.AvgCPU
		ram += d.AvgRAM
		disk += d.AvgDisk
		crashes += d.CrashCount
	}
	return TrendTotals{
		AvgCPU:       roundMean(cpu, len(daily)),
		AvgRAM:       roundMean(ram, len(daily)),
		AvgDisk:      roundMean(disk, len(daily)),
		TotalCrashes: crashes,
	}
}
