package analytics

import (
	"math"
	"time"

	"tracepoint-dashboard-api/internal/model"
)

// DateLayout formats UTC calendar days.
const DateLayout = "2006-01-02"

// OS bucket names, in display order.
const (
	OSWindows11 = "Windows 11"
	OSWindows10 = "Windows 10"
	OSOther     = "Other"
)

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StatusCounts partitions a device list by derived status.
type StatusCounts struct {
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
	Total   int `json:"total"`
}

// CountByStatus counts devices per status at instant now.
func CountByStatus(devices []model.DeviceRecord, now time.Time) StatusCounts {
	var c StatusCounts
	for _, d := range devices {
		switch d.Status(now) {
		case model.StatusOnline:
			c.Online++
		case model.StatusOffline:
			c.Offline++
		case model.StatusWarning:
			c.Warning++
		case model.StatusError:
			c.Error++
		}
		c.Total++
	}
	return c
}

// OSBucket is one slice of the OS distribution chart.
type OSBucket struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// OSDistribution buckets devices by exact osVersion. The result always has
// three buckets: Windows 11, Windows 10 and Other.
func OSDistribution(devices []model.DeviceRecord) []OSBucket {
	buckets := []OSBucket{{Name: OSWindows11}, {Name: OSWindows10}, {Name: OSOther}}
	for _, d := range devices {
		switch d.OSVersion {
		case OSWindows11:
			buckets[0].Count++
		case OSWindows10:
			buckets[1].Count++
		default:
			buckets[2].Count++
		}
	}
	return buckets
}

// OverviewSummary is the dashboard landing view.
type OverviewSummary struct {
	TotalDevices          int               `json:"totalDevices"`
	ConnectedToday        int               `json:"connectedToday"`
	ConnectedTodayPercent int               `json:"connectedTodayPercent"`
	Offline               int               `json:"offline"`
	TotalErrors           int               `json:"totalErrors"`
	LatestDevice          *model.DeviceView `json:"latestDevice"`
	StatusCounts          StatusCounts      `json:"statusCounts"`
	OSDistribution        []OSBucket        `json:"osDistribution"`
	Trend                 []TrendPoint      `json:"trend"`
	GeneratedAt           time.Time         `json:"generatedAt"`
}

// Overview summarizes devices at instant now. A device counts as connected
// today when its timestamp is on or after 00:00 UTC of now's day and as
// offline otherwise. trendPoints bounds the length of the recent trend.
func Overview(devices []model.DeviceRecord, now time.Time, trendPoints int) OverviewSummary {
	today := startOfDay(now)
	s := OverviewSummary{
		TotalDevices:   len(devices),
		StatusCounts:   CountByStatus(devices, now),
		OSDistribution: OSDistribution(devices),
		Trend:          RecentTrend(devices, trendPoints),
		GeneratedAt:    now.UTC(),
	}

	latest := -1
	for i, d := range devices {
		if d.Timestamp.Before(today) {
			s.Offline++
		} else {
			s.ConnectedToday++
		}
		s.TotalErrors += d.CrashCount
		if latest < 0 || d.Timestamp.After(devices[latest].Timestamp) {
			latest = i
		}
	}
	if latest >= 0 {
		v := devices[latest].View(now)
		s.LatestDevice = &v
	}
	if s.TotalDevices > 0 {
		s.ConnectedTodayPercent = int(math.Round(float64(s.ConnectedToday) * 100 / float64(s.TotalDevices)))
	}
	return s
}
