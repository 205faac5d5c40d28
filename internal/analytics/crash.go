package analytics

import (
	"time"

	"tracepoint-dashboard-api/internal/model"
)

// SourceGroup aggregates crashes sharing one source label.
type SourceGroup struct {
	Source      string `json:"source"`
	Occurrences int    `json:"occurrences"`
	Devices     int    `json:"devices"`
}

// CrashReport is the crash analysis view.
type CrashReport struct {
	Groups          []SourceGroup      `json:"groups"`
	Events          []model.CrashEvent `json:"events"`
	TotalCrashes    int                `json:"totalCrashes"`
	AffectedDevices int                `json:"affectedDevices"`
}

// AggregateCrashes groups events by source, in order of first appearance,
// counting occurrences and distinct devices per source. Events are passed
// through unchanged.
func AggregateCrashes(events []model.CrashEvent) CrashReport {
	index := make(map[string]int)
	perSource := make(map[string]map[string]struct{})
	allDevices := make(map[string]struct{})
	groups := make([]SourceGroup, 0)

	for _, e := range events {
		i, ok := index[e.Source]
		if !ok {
			i = len(groups)
			index[e.Source] = i
			groups = append(groups, SourceGroup{Source: e.Source})
			perSource[e.Source] = make(map[string]struct{})
		}
		groups[i].Occurrences++
		perSource[e.Source][e.DeviceID] = struct{}{}
		allDevices[e.DeviceID] = struct{}{}
	}
	for i := range groups {
		groups[i].Devices = len(perSource[groups[i].Source])
	}

	out := append(make([]model.CrashEvent, 0, len(events)), events...)
	return CrashReport{
		Groups:          groups,
		Events:          out,
		TotalCrashes:    len(events),
		AffectedDevices: len(allDevices),
	}
}

// DailyCrashCount is the number of crashes recorded on one UTC day.
type DailyCrashCount struct {
	Date    string `json:"date"`
	Crashes int    `json:"crashes"`
}

// CrashesPerDay counts events per UTC day over the last days days ending at
// now. Every day in the window is present, oldest first; days without
// crashes count zero.
func CrashesPerDay(events []model.CrashEvent, days int, now time.Time) []DailyCrashCount {
	if days <= 0 {
		return []DailyCrashCount{}
	}
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.Timestamp.UTC().Format(DateLayout)]++
	}

	today := startOfDay(now)
	out := make([]DailyCrashCount, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(DateLayout)
		out = append(out, DailyCrashCount{Date: date, Crashes: counts[date]})
	}
	return out
}
