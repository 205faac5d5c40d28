package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"tracepoint-dashboard-api/internal/analytics"
	"tracepoint-dashboard-api/internal/cache"
	"tracepoint-dashboard-api/internal/crashes"
	"tracepoint-dashboard-api/internal/logger"
	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/telemetry"
	apperrors "tracepoint-dashboard-api/pkg/errors"
	"tracepoint-dashboard-api/pkg/validation"
)

// Service errors
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrSuperseded     = errors.New("request superseded")
)

// DevicesBackLink is where a client goes back to from a missing device.
const DevicesBackLink = "/devices"

// Defaults for the derived views
const (
	DefaultTrendPoints  = 10
	DefaultLookbackDays = 30
	OverviewDays        = 30
	RecentSnapshots     = 7
	DefaultDevicesSort  = "computerName"
	DefaultCrashesSort  = "timestamp"
)

// Operations coordinated per client view.
const (
	deviceListOperation   = "devices"
	deviceDetailOperation = "device"
	crashOperation        = "crashes"
	trendOperation        = "trends"
	overviewOperation     = "overview"
)

// DashboardOptions tunes the derived views.
type DashboardOptions struct {
	TrendPoints  int
	LookbackDays int
	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// DashboardService assembles the dashboard pages from upstream telemetry.
type DashboardService struct {
	api     telemetry.API
	crashes crashes.Source
	cache   *cache.Cache[model.DeviceRecord]
	latest  *telemetry.Latest
	logger  logger.Logger
	opts    DashboardOptions
}

// NewDashboardService creates a dashboard service. A nil cache disables
// caching; a nil latest disables request coordination.
func NewDashboardService(api telemetry.API, source crashes.Source, c *cache.Cache[model.DeviceRecord],
	latest *telemetry.Latest, opts DashboardOptions, log logger.Logger) *DashboardService {
	if log == nil {
		log = logger.Noop()
	}
	if c == nil {
		c = cache.New[model.DeviceRecord](0, nil)
	}
	if latest == nil {
		latest = telemetry.NewLatest()
	}
	if opts.TrendPoints <= 0 {
		opts.TrendPoints = DefaultTrendPoints
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = DefaultLookbackDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &DashboardService{
		api:     api,
		crashes: source,
		cache:   c,
		latest:  latest,
		logger:  log,
		opts:    opts,
	}
}

type viewKeyCtx struct{}

// WithViewKey tags ctx with the client view issuing the request. Requests
// sharing a view key and operation supersede each other.
func WithViewKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, viewKeyCtx{}, key)
}

// ViewKey returns the view key of ctx, if any.
func ViewKey(ctx context.Context) string {
	key, _ := ctx.Value(viewKeyCtx{}).(string)
	return key
}

// begin registers an operation for the request's view. current reports
// whether the operation is still the newest for that view and must be
// checked before release.
func (s *DashboardService) begin(ctx context.Context, op string) (context.Context, func() bool, func()) {
	key := ViewKey(ctx)
	if key == "" {
		return ctx, func() bool { return true }, func() {}
	}
	ctx, ticket, release := s.latest.Begin(ctx, op+":"+key)
	return ctx, ticket.Current, release
}

func (s *DashboardService) now() time.Time {
	return s.opts.Now().UTC()
}

// windowStart is the start of the UTC day days ago. Day granularity keeps
// upstream queries stable enough to cache.
func windowStart(now time.Time, days int) time.Time {
	y, m, d := now.UTC().AddDate(0, 0, -days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fetchDevices runs a coarse upstream query, serving repeats from the cache.
// Failed results are never cached.
func (s *DashboardService) fetchDevices(ctx context.Context, q telemetry.DeviceQuery) telemetry.Result[model.DeviceRecord] {
	key := q.Key()
	if devices, ok := s.cache.Get(key); ok {
		s.logger.Debug("Cache hit for %s", key)
		return telemetry.OK(devices)
	}

	res := s.api.Devices(ctx, q)
	if res.Failed() {
		if !telemetry.IsCanceled(res.Err) {
			s.logger.Error("Failed to fetch devices: %v", res.Err)
		}
		return res
	}
	s.cache.Set(key, res.Items)
	return res
}

// InvalidateCache drops cached upstream queries whose key starts with
// prefix; empty drops everything.
func (s *DashboardService) InvalidateCache(prefix string) int {
	n := s.cache.Invalidate(prefix)
	s.logger.Info("Invalidated %d cached queries (prefix %q)", n, prefix)
	return n
}

// CacheStats reports cache usage.
func (s *DashboardService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// DeviceListQuery describes one devices page request.
type DeviceListQuery struct {
	Filter    analytics.DeviceFilter
	SortField string
	Direction analytics.Direction
	Page      int
	PageSize  int
}

// DeviceList is the devices page.
type DeviceList struct {
	State   telemetry.State        `json:"state"`
	Message string                 `json:"message,omitempty"`
	Devices []model.DeviceView     `json:"devices"`
	Total   int                    `json:"total"`
	Counts  analytics.StatusCounts `json:"counts"`
}

// ListDevices fetches devices matching the coarse filter, then applies the
// fine filter, sort and page locally. Status counts cover everything fetched
// so tabs can show their size.
func (s *DashboardService) ListDevices(ctx context.Context, q DeviceListQuery) (*DeviceList, error) {
	if q.SortField == "" {
		q.SortField = DefaultDevicesSort
	}
	if q.Direction == "" {
		q.Direction = analytics.Asc
	}
	if !analytics.ValidSortField(analytics.DeviceSortFields, q.SortField) {
		return nil, apperrors.ValidationError(fmt.Sprintf("unsupported sort field %q", q.SortField)).
			WithDetail("sort", strings.Join(analytics.DeviceSortFields, ", "))
	}

	ctx, current, release := s.begin(ctx, deviceListOperation)
	defer release()

	res := s.fetchDevices(ctx, telemetry.DeviceQuery{
		DeviceID:     q.Filter.DeviceID,
		ComputerName: q.Filter.ComputerName,
		LoggedUser:   q.Filter.LoggedUser,
		DateFrom:     q.Filter.DateFrom,
		DateTo:       q.Filter.DateTo,
	})
	if !current() {
		return nil, ErrSuperseded
	}
	if res.Failed() {
		return &DeviceList{
			State:   telemetry.StateFailed,
			Message: "Failed to load devices: " + res.Reason(),
			Devices: []model.DeviceView{},
		}, nil
	}

	now := s.now()
	filtered := analytics.FilterDevices(res.Items, q.Filter, now)
	sorted, err := analytics.SortDevices(filtered, q.SortField, q.Direction, now)
	if err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}

	list := &DeviceList{
		State:   telemetry.StateOK,
		Total:   len(sorted),
		Counts:  analytics.CountByStatus(res.Items, now),
		Devices: model.Views(paginate(sorted, q.Page, q.PageSize), now),
	}
	if len(sorted) == 0 {
		list.State = telemetry.StateEmpty
		list.Message = emptyDevicesMessage(q.Filter)
	}
	return list, nil
}

func emptyDevicesMessage(f analytics.DeviceFilter) string {
	for _, term := range []string{f.Search, f.ComputerName, f.LoggedUser, f.DeviceID} {
		if term != "" {
			return fmt.Sprintf("No devices found matching '%s'", term)
		}
	}
	if f.Status != "" && f.Status != analytics.StatusAll {
		return fmt.Sprintf("No %s devices found", f.Status)
	}
	return "No devices found"
}

// paginate returns page (1-based) of size items. Non-positive size returns
// everything.
func paginate[T any](items []T, page, size int) []T {
	if size <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(items) {
		return items[:0]
	}
	end := min(start+size, len(items))
	return items[start:end]
}

// DeviceDetail is the device details page.
type DeviceDetail struct {
	Device   model.DeviceView         `json:"device"`
	History  []analytics.HistoryPoint `json:"history"`
	Crashes  []model.CrashEvent       `json:"crashes"`
	Recent   []model.LogEntry         `json:"recent"`
	Warnings []string                 `json:"warnings,omitempty"`
}

// DeviceDetail looks up one device with its history. A malformed or unknown
// id yields ErrDeviceNotFound; a failed device fetch yields the fetch error.
// History or crash failures degrade to warnings.
func (s *DashboardService) DeviceDetail(ctx context.Context, deviceID string) (*DeviceDetail, error) {
	if err := validation.ValidateDeviceID(deviceID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}

	ctx, current, release := s.begin(ctx, deviceDetailOperation)
	defer release()

	res := s.fetchDevices(ctx, telemetry.DeviceQuery{DeviceID: deviceID})
	if !current() {
		return nil, ErrSuperseded
	}
	if res.Failed() {
		return nil, fmt.Errorf("failed to load device %s: %w", deviceID, res.Err)
	}

	idx := slices.IndexFunc(res.Items, func(d model.DeviceRecord) bool { return d.DeviceID == deviceID })
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	device := res.Items[idx]
	now := s.now()

	detail := &DeviceDetail{
		Device:  device.View(now),
		History: []analytics.HistoryPoint{},
		Crashes: []model.CrashEvent{},
		Recent:  []model.LogEntry{},
	}

	logs := s.api.DeviceLogs(ctx, deviceID)
	if logs.Failed() {
		s.logger.Warn("Failed to load history for device %s: %v", deviceID, logs.Err)
		detail.Warnings = append(detail.Warnings, "Failed to load history: "+logs.Reason())
	} else {
		detail.History = analytics.HistorySeries(logs.Items)
		recent := newestFirst(logs.Items)
		detail.Recent = recent[:min(RecentSnapshots, len(recent))]
	}

	if s.crashes != nil {
		var (
			events []model.CrashEvent
			err    error
		)
		if ls, ok := s.crashes.(crashes.LogSource); ok && !logs.Failed() {
			events, err = ls.LogCrashes(ctx, device, logs.Items, time.Time{})
		} else {
			events, err = s.crashes.Crashes(ctx, []model.DeviceRecord{device}, time.Time{})
		}
		if err != nil {
			s.logger.Warn("Failed to load crashes for device %s: %v", deviceID, err)
			detail.Warnings = append(detail.Warnings, "Failed to load crashes")
		} else if sorted, err := analytics.SortCrashEvents(events, "timestamp", analytics.Desc); err == nil {
			detail.Crashes = sorted
		}
	}

	if !current() {
		return nil, ErrSuperseded
	}
	return detail, nil
}

func newestFirst(entries []model.LogEntry) []model.LogEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b model.LogEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}

// CrashQuery describes one crash analysis request.
type CrashQuery struct {
	Days      int
	Filter    string
	SortField string
	Direction analytics.Direction
}

// CrashAnalysis is the crash analysis page.
type CrashAnalysis struct {
	State   telemetry.State             `json:"state"`
	Message string                      `json:"message,omitempty"`
	Days    int                         `json:"days"`
	Report  analytics.CrashReport       `json:"report"`
	PerDay  []analytics.DailyCrashCount `json:"perDay"`
}

// CrashAnalysis gathers crashes of devices seen in the lookback window,
// filters, sorts and aggregates them.
func (s *DashboardService) CrashAnalysis(ctx context.Context, q CrashQuery) (*CrashAnalysis, error) {
	if q.Days <= 0 {
		q.Days = s.opts.LookbackDays
	}
	if q.SortField == "" {
		q.SortField = DefaultCrashesSort
	}
	if q.Direction == "" {
		q.Direction = analytics.Desc
	}
	if !analytics.ValidSortField(analytics.CrashSortFields, q.SortField) {
		return nil, apperrors.ValidationError(fmt.Sprintf("unsupported sort field %q", q.SortField)).
			WithDetail("sort", strings.Join(analytics.CrashSortFields, ", "))
	}

	ctx, current, release := s.begin(ctx, crashOperation)
	defer release()

	now := s.now()
	since := now.AddDate(0, 0, -q.Days)
	out := &CrashAnalysis{
		Days:   q.Days,
		Report: analytics.AggregateCrashes(nil),
		PerDay: analytics.CrashesPerDay(nil, q.Days, now),
	}

	res := s.fetchDevices(ctx, telemetry.DeviceQuery{DateFrom: windowStart(now, q.Days)})
	if !current() {
		return nil, ErrSuperseded
	}
	if res.Failed() {
		out.State = telemetry.StateFailed
		out.Message = "Failed to load crash data: " + res.Reason()
		return out, nil
	}

	events := []model.CrashEvent{}
	var err error
	if s.crashes != nil {
		events, err = s.crashes.Crashes(ctx, res.Items, since)
	}
	if !current() {
		return nil, ErrSuperseded
	}
	if err != nil {
		s.logger.Error("Failed to collect crashes: %v", err)
		out.State = telemetry.StateFailed
		out.Message = "Failed to load crash data"
		var fe *telemetry.FetchError
		if errors.As(err, &fe) {
			out.Message += ": " + fe.Reason()
		}
		return out, nil
	}

	filtered := analytics.FilterCrashEvents(events, q.Filter, since)
	sorted, err := analytics.SortCrashEvents(filtered, q.SortField, q.Direction)
	if err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}

	out.Report = analytics.AggregateCrashes(sorted)
	out.PerDay = analytics.CrashesPerDay(sorted, q.Days, now)
	out.State = telemetry.StateOK
	if len(sorted) == 0 {
		out.State = telemetry.StateEmpty
		out.Message = "No crashes recorded in the last " + pluralDays(q.Days)
		if q.Filter != "" {
			out.Message = fmt.Sprintf("No crashes found matching '%s'", q.Filter)
		}
	}
	return out, nil
}

func pluralDays(n int) string {
	if n == 1 {
		return "day"
	}
	return fmt.Sprintf("%d days", n)
}

// TrendReport is the trends page.
type TrendReport struct {
	State   telemetry.State         `json:"state"`
	Message string                  `json:"message,omitempty"`
	Days    int                     `json:"days"`
	Daily   []analytics.DailyTrend  `json:"daily"`
	Weekly  []analytics.WeeklyTrend `json:"weekly"`
	Totals  analytics.TrendTotals   `json:"totals"`
}

// Trends aggregates devices seen in the last days days per UTC day and week.
func (s *DashboardService) Trends(ctx context.Context, days int) (*TrendReport, error) {
	if days <= 0 {
		days = s.opts.LookbackDays
	}

	ctx, current, release := s.begin(ctx, trendOperation)
	defer release()

	now := s.now()
	from := windowStart(now, days)
	out := &TrendReport{
		Days:   days,
		Daily:  []analytics.DailyTrend{},
		Weekly: []analytics.WeeklyTrend{},
	}

	res := s.fetchDevices(ctx, telemetry.DeviceQuery{DateFrom: from})
	if !current() {
		return nil, ErrSuperseded
	}
	if res.Failed() {
		out.State = telemetry.StateFailed
		out.Message = "Failed to load trends: " + res.Reason()
		return out, nil
	}

	out.Daily = analytics.DailyTrends(res.Items, from, now)
	out.Weekly = analytics.WeeklyTrends(out.Daily)
	out.Totals = analytics.TotalsOf(out.Daily)
	out.State = telemetry.StateOK
	if len(out.Daily) == 0 {
		out.State = telemetry.StateEmpty
		out.Message = "No telemetry recorded in the last " + pluralDays(days)
	}
	return out, nil
}

// OverviewReport is the dashboard landing page.
type OverviewReport struct {
	State   telemetry.State           `json:"state"`
	Message string                    `json:"message,omitempty"`
	Summary analytics.OverviewSummary `json:"summary"`
}

// Overview summarizes devices seen in the last 30 days.
func (s *DashboardService) Overview(ctx context.Context) (*OverviewReport, error) {
	ctx, current, release := s.begin(ctx, overviewOperation)
	defer release()

	now := s.now()
	res := s.fetchDevices(ctx, telemetry.DeviceQuery{DateFrom: windowStart(now, OverviewDays)})
	if !current() {
		return nil, ErrSuperseded
	}
	if res.Failed() {
		return &OverviewReport{
			State:   telemetry.StateFailed,
			Message: "Failed to load dashboard: " + res.Reason(),
			Summary: analytics.Overview(nil, now, s.opts.TrendPoints),
		}, nil
	}

	out := &OverviewReport{
		State:   res.State,
		Summary: analytics.Overview(res.Items, now, s.opts.TrendPoints),
	}
	if res.State == telemetry.StateEmpty {
		out.Message = "No devices reported in the last " + pluralDays(OverviewDays)
	}
	return out, nil
}
