package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracepoint-dashboard-api/internal/model"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func device(id, name, user string, age time.Duration, crashes int) model.DeviceRecord {
	return model.DeviceRecord{
		DeviceID:     id,
		ComputerName: name,
		LoggedOnUser: user,
		OSVersion:    "Windows 11",
		Timestamp:    now.Add(-age),
		CPU:          20,
		RAM:          30,
		Disk:         model.NewDisk(100, 400),
		CrashCount:   crashes,
	}
}

func fleet() []model.DeviceRecord {
	return []model.DeviceRecord{
		device("a-1", "LAPTOP-IT01", `CORP\john.smith`, time.Hour, 0),
		device("b-2", "DESKTOP-HR02", `CORP\jane.doe`, 2*time.Hour, 2),
		device("c-3", "WKS-ENG03", `CORP\bob.admin`, 7*24*time.Hour, 0),
		device("d-4", "laptop-fin04", `CORP\alice.jones`, 30*time.Minute, 1),
	}
}

func ids(devices []model.DeviceRecord) []string {
	out := make([]string, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.DeviceID)
	}
	return out
}

func TestFilterDevices_ZeroFilterReturnsAllInOrder(t *testing.T) {
	in := fleet()
	out := FilterDevices(in, DeviceFilter{Status: StatusAll}, now)
	assert.Equal(t, in, out)
}

func TestFilterDevices_SearchIsCaseInsensitive(t *testing.T) {
	out := FilterDevices(fleet(), DeviceFilter{Search: "laptop"}, now)
	assert.Equal(t, []string{"a-1", "d-4"}, ids(out))

	out = FilterDevices(fleet(), DeviceFilter{Search: "JANE"}, now)
	assert.Equal(t, []string{"b-2"}, ids(out))

	out = FilterDevices(fleet(), DeviceFilter{Search: "c-3"}, now)
	assert.Equal(t, []string{"c-3"}, ids(out))
}

func TestFilterDevices_SpacesAreSignificant(t *testing.T) {
	in := []model.DeviceRecord{
		device("s-1", "WS HR01", "hr", time.Hour, 0),
		device("s-2", "WSHR02", "hr", time.Hour, 0),
	}

	out := FilterDevices(in, DeviceFilter{Search: " "}, now)
	assert.Equal(t, []string{"s-1"}, ids(out))

	out = FilterDevices(in, DeviceFilter{ComputerName: "ws "}, now)
	assert.Equal(t, []string{"s-1"}, ids(out))

	out = FilterDevices(in, DeviceFilter{Search: "wshr"}, now)
	assert.Equal(t, []string{"s-2"}, ids(out))
}

func TestFilterDevices_ResultIsSubsetMatchingEveryPredicate(t *testing.T) {
	f := DeviceFilter{ComputerName: "o", LoggedUser: "corp", DateFrom: now.Add(-3 * time.Hour)}
	out := FilterDevices(fleet(), f, now)

	for _, d := range out {
		assert.True(t, f.Match(d, now))
	}
	assert.Equal(t, []string{"a-1", "b-2", "d-4"}, ids(out))
}

func TestFilterDevices_ErrorTab(t *testing.T) {
	out := FilterDevices(fleet(), DeviceFilter{Status: string(model.StatusError)}, now)

	require.Len(t, out, 2)
	for _, d := range out {
		assert.Equal(t, model.StatusError, d.Status(now))
	}
}

func TestFilterDevices_DateWindowIsInclusive(t *testing.T) {
	in := fleet()
	f := DeviceFilter{DateFrom: in[1].Timestamp, DateTo: in[0].Timestamp}
	out := FilterDevices(in, f, now)
	assert.Equal(t, []string{"a-1", "b-2"}, ids(out))
}

func TestSortDevices_DescReversesAscWhenKeysDistinct(t *testing.T) {
	in := fleet()
	asc, err := SortDevices(in, "computerName", Asc, now)
	require.NoError(t, err)
	desc, err := SortDevices(in, "computerName", Desc, now)
	require.NoError(t, err)

	assert.Equal(t, []string{"b-2", "a-1", "c-3", "d-4"}, ids(asc))
	for i := range asc {
		assert.Equal(t, asc[i].DeviceID, desc[len(desc)-1-i].DeviceID)
	}
	assert.Equal(t, "a-1", in[0].DeviceID, "input must not be reordered")
}

func TestSortDevices_TiesKeepInputOrder(t *testing.T) {
	in := fleet()
	asc, err := SortDevices(in, "cpu", Asc, now)
	require.NoError(t, err)
	desc, err := SortDevices(in, "cpu", Desc, now)
	require.NoError(t, err)

	assert.Equal(t, ids(in), ids(asc))
	assert.Equal(t, ids(in), ids(desc))
}

func TestSortDevices_Fields(t *testing.T) {
	out, err := SortDevices(fleet(), "timestamp", Desc, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"d-4", "a-1", "b-2", "c-3"}, ids(out))

	out, err = SortDevices(fleet(), "crashCount", Desc, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"b-2", "d-4", "a-1", "c-3"}, ids(out))

	out, err = SortDevices(fleet(), "status", Asc, now)
	require.NoError(t, err)
	assert.Equal(t, "c-3", out[len(out)-1].DeviceID)

	_, err = SortDevices(fleet(), "colour", Asc, now)
	assert.Error(t, err)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("", Desc)
	require.NoError(t, err)
	assert.Equal(t, Desc, d)

	d, err = ParseDirection("ASC", Desc)
	require.NoError(t, err)
	assert.Equal(t, Asc, d)
	assert.Equal(t, Desc, d.Toggle())

	_, err = ParseDirection("up", Asc)
	assert.Error(t, err)
}

func crashEvents() []model.CrashEvent {
	base := now.Add(-48 * time.Hour)
	return []model.CrashEvent{
		{DeviceID: "a", DeviceName: "LAPTOP-IT01", User: "john", Source: "BugCheck", EventID: 1041, Message: "kernel", Timestamp: base},
		{DeviceID: "b", DeviceName: "DESKTOP-HR02", User: "jane", Source: "Application Error", EventID: 1000, Message: "faulting", Timestamp: base.Add(time.Hour)},
		{DeviceID: "a", DeviceName: "LAPTOP-IT01", User: "john", Source: "BugCheck", EventID: 1099, Message: "kernel again", Timestamp: base.Add(2 * time.Hour)},
		{DeviceID: "a", DeviceName: "LAPTOP-IT01", User: "john", Source: "Application Error", EventID: 1010, Message: "faulting", Timestamp: base.Add(25 * time.Hour)},
	}
}

func TestAggregateCrashes(t *testing.T) {
	events := crashEvents()
	report := AggregateCrashes(events)

	assert.Equal(t, 4, report.TotalCrashes)
	assert.Equal(t, 2, report.AffectedDevices)
	require.Len(t, report.Groups, 2)
	assert.Equal(t, SourceGroup{Source: "BugCheck", Occurrences: 2, Devices: 1}, report.Groups[0])
	assert.Equal(t, SourceGroup{Source: "Application Error", Occurrences: 2, Devices: 2}, report.Groups[1])

	sum := 0
	for _, g := range report.Groups {
		sum += g.Occurrences
		assert.LessOrEqual(t, g.Devices, g.Occurrences)
	}
	assert.Equal(t, len(events), sum)
	assert.Equal(t, events, report.Events)
}

func TestAggregateCrashes_Empty(t *testing.T) {
	report := AggregateCrashes(nil)
	assert.Equal(t, 0, report.TotalCrashes)
	assert.NotNil(t, report.Groups)
	assert.NotNil(t, report.Events)
}

func TestFilterCrashEvents(t *testing.T) {
	events := crashEvents()

	out := FilterCrashEvents(events, "FAULTING", time.Time{})
	assert.Len(t, out, 2)

	out = FilterCrashEvents(events, "", events[1].Timestamp)
	require.Len(t, out, 2, "since is exclusive")
	assert.Equal(t, 1099, out[0].EventID)
}

func TestFilterCrashEvents_SpacesAreSignificant(t *testing.T) {
	events := []model.CrashEvent{
		{DeviceID: "a", Source: "App Crash", EventID: 1},
		{DeviceID: "b", Source: "AppCrash", EventID: 2},
	}

	out := FilterCrashEvents(events, "app ", time.Time{})
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].EventID)
}

func TestSortCrashEvents(t *testing.T) {
	out, err := SortCrashEvents(crashEvents(), "eventId", Asc)
	require.NoError(t, err)
	assert.Equal(t, 1000, out[0].EventID)
	assert.Equal(t, 1099, out[3].EventID)

	out, err = SortCrashEvents(crashEvents(), "timestamp", Desc)
	require.NoError(t, err)
	assert.Equal(t, 1010, out[0].EventID)

	_, err = SortCrashEvents(crashEvents(), "severity", Asc)
	assert.Error(t, err)
}

func TestCrashesPerDay(t *testing.T) {
	out := CrashesPerDay(crashEvents(), 3, now)
	require.Len(t, out, 3)
	assert.Equal(t, DailyCrashCount{Date: "2026-03-08", Crashes: 3}, out[0])
	assert.Equal(t, DailyCrashCount{Date: "2026-03-09", Crashes: 1}, out[1])
	assert.Equal(t, DailyCrashCount{Date: "2026-03-10", Crashes: 0}, out[2])
}

func TestCountByStatus(t *testing.T) {
	c := CountByStatus(fleet(), now)
	assert.Equal(t, StatusCounts{Online: 1, Offline: 1, Error: 2, Total: 4}, c)
	assert.Equal(t, c.Total, c.Online+c.Offline+c.Warning+c.Error)
}

func TestOSDistribution(t *testing.T) {
	devices := fleet()
	devices[1].OSVersion = "Windows 10"
	devices[2].OSVersion = "Windows Server 2022"
	devices[3].OSVersion = "windows 11"

	out := OSDistribution(devices)
	assert.Equal(t, []OSBucket{
		{Name: "Windows 11", Count: 1},
		{Name: "Windows 10", Count: 1},
		{Name: "Other", Count: 2},
	}, out)
}

func TestOverview(t *testing.T) {
	s := Overview(fleet(), now, 2)

	assert.Equal(t, 4, s.TotalDevices)
	assert.Equal(t, 3, s.ConnectedToday)
	assert.Equal(t, 1, s.Offline)
	assert.Equal(t, 75, s.ConnectedTodayPercent)
	assert.Equal(t, 3, s.TotalErrors)
	require.NotNil(t, s.LatestDevice)
	assert.Equal(t, "d-4", s.LatestDevice.DeviceID)
	assert.Equal(t, model.StatusError, s.LatestDevice.Status)
	assert.Equal(t, []string{"a-1", "d-4"}, []string{s.Trend[0].DeviceID, s.Trend[1].DeviceID})
}

func TestOverview_EmptyFleet(t *testing.T) {
	s := Overview(nil, now, 10)
	assert.Equal(t, 0, s.ConnectedTodayPercent)
	assert.Nil(t, s.LatestDevice)
	assert.Empty(t, s.Trend)
	assert.Len(t, s.OSDistribution, 3)
}

func TestRecentTrend_OldestFirst(t *testing.T) {
	out := RecentTrend(fleet(), 10)
	require.Len(t, out, 4)
	assert.Equal(t, "c-3", out[0].DeviceID)
	assert.Equal(t, "d-4", out[3].DeviceID)
	assert.Equal(t, 25, out[0].Disk)
}

func TestHistorySeries_Chronological(t *testing.T) {
	entries := []model.LogEntry{
		{DeviceID: "a", Timestamp: now, CPU: 3},
		{DeviceID: "a", Timestamp: now.Add(-time.Hour), CPU: 2},
		{DeviceID: "a", Timestamp: now.Add(-2 * time.Hour), CPU: 1, CrashCount: 4},
	}
	out := HistorySeries(entries)
	require.Len(t, out, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{out[0].CPU, out[1].CPU, out[2].CPU})
	assert.Equal(t, 4, out[0].Crashes)
}

func TestDailyAndWeeklyTrends(t *testing.T) {
	var devices []model.DeviceRecord
	for day := 0; day < 9; day++ {
		d := device("x", "n", "u", time.Duration(day)*24*time.Hour, 1)
		d.CPU = 10 * (day%2 + 1)
		devices = append(devices, d)
	}
	// a second device on the newest day
	extra := device("y", "n", "u", time.Hour, 2)
	extra.CPU = 15
	devices = append(devices, extra)

	daily := DailyTrends(devices, time.Time{}, time.Time{})
	require.Len(t, daily, 9)
	assert.Equal(t, "2026-03-02", daily[0].Date)
	last := daily[8]
	assert.Equal(t, "2026-03-10", last.Date)
	assert.Equal(t, 2, last.Devices)
	assert.Equal(t, 13, last.AvgCPU)
	assert.Equal(t, 3, last.CrashCount)

	weekly := WeeklyTrends(daily)
	require.Len(t, weekly, 2)
	assert.Equal(t, "2026-03-02 to 2026-03-08", weekly[0].Week)
	assert.Equal(t, "2026-03-09 to 2026-03-10", weekly[1].Week)
	assert.Equal(t, 7, weekly[0].CrashCount)

	totals := TotalsOf(daily)
	assert.Equal(t, 11, totals.TotalCrashes)
	assert.Equal(t, TrendTotals{}, TotalsOf(nil))
}

func TestDailyTrends_WindowAndGaps(t *testing.T) {
	devices := []model.DeviceRecord{
		device("a", "n", "u", 0, 0),
		device("b", "n", "u", 3*24*time.Hour, 0),
		device("c", "n", "u", 40*24*time.Hour, 0),
	}
	daily := DailyTrends(devices, now.AddDate(0, 0, -30), now)
	require.Len(t, daily, 2, "missing days are not imputed")
	assert.Equal(t, "2026-03-07", daily[0].Date)
}
