// Package crashes provides the crash events behind the crash analysis view.
package crashes

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tracepoint-dashboard-api/internal/logger"
	"tracepoint-dashboard-api/internal/mockdata"
	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/telemetry"
)

// Source yields the crash events of devices recorded after since.
type Source interface {
	Crashes(ctx context.Context, devices []model.DeviceRecord, since time.Time) ([]model.CrashEvent, error)
}

// LogSource is a Source that can read crashes from device logs the caller
// already holds.
type LogSource interface {
	Source
	LogCrashes(ctx context.Context, device model.DeviceRecord, logs []model.LogEntry, since time.Time) ([]model.CrashEvent, error)
}

// Kind names a Source implementation in configuration.
const (
	KindPayload   = "payload"
	KindSynthetic = "synthetic"
)

// PayloadSource reads crashes from the raw snapshot payloads of each device.
type PayloadSource struct {
	api         telemetry.API
	logger      logger.Logger
	concurrency int
}

// NewPayloadSource creates a payload-backed source. concurrency bounds the
// number of upstream requests in flight.
func NewPayloadSource(api telemetry.API, log logger.Logger, concurrency int) *PayloadSource {
	if log == nil {
		log = logger.Noop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &PayloadSource{api: api, logger: log, concurrency: concurrency}
}

var _ LogSource = (*PayloadSource)(nil)

// Crashes walks every device's logs newer than since and flattens the crashes
// from their payloads. Events are returned grouped by device in input order,
// each device's events in payload order. Any failed log listing fails the
// call; a payload that cannot be fetched is skipped.
func (s *PayloadSource) Crashes(ctx context.Context, devices []model.DeviceRecord, since time.Time) ([]model.CrashEvent, error) {
	perDevice := make([][]model.CrashEvent, len(devices))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, d := range devices {
		g.Go(func() error {
			events, err := s.deviceCrashes(ctx, d, since)
			if err != nil {
				return err
			}
			perDevice[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.CrashEvent, 0)
	for _, events := range perDevice {
		out = append(out, events...)
	}
	return out, nil
}

func (s *PayloadSource) deviceCrashes(ctx context.Context, d model.DeviceRecord, since time.Time) ([]model.CrashEvent, error) {
	logs := s.api.DeviceLogs(ctx, d.DeviceID)
	if logs.Failed() {
		return nil, fmt.Errorf("failed to list logs for device %s: %w", d.DeviceID, logs.Err)
	}
	return s.LogCrashes(ctx, d, logs.Items, since)
}

// LogCrashes fetches the payloads referenced by logs newer than since and
// returns their crashes in payload order. A payload that cannot be fetched is
// skipped.
func (s *PayloadSource) LogCrashes(ctx context.Context, d model.DeviceRecord, logs []model.LogEntry, since time.Time) ([]model.CrashEvent, error) {
	events := make([]model.CrashEvent, 0)
	for _, entry := range logs {
		if entry.PayloadURL == "" || (!since.IsZero() && !entry.Timestamp.After(since)) {
			continue
		}
		payload, err := s.api.Payload(ctx, entry.PayloadURL)
		if err != nil {
			if telemetry.IsCanceled(err) {
				return nil, err
			}
			s.logger.Warn("Skipping payload %s for device %s: %v", entry.PayloadURL, d.DeviceID, err)
			continue
		}

		user := d.LoggedOnUser
		if user == "" {
			user = payload.LoggedOnUser
		}
		for _, e := range payload.CrashEvents(d.DeviceID, d.ComputerName, user) {
			if since.IsZero() || e.Timestamp.After(since) {
				events = append(events, e)
			}
		}
	}
	return events, nil
}

// SyntheticSource fabricates crashCount events per device from the crash
// catalogues. It is safe for concurrent use.
type SyntheticSource struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSyntheticSource creates a synthetic source. A nil now uses time.Now.
func NewSyntheticSource(seed int64, now func() time.Time) *SyntheticSource {
	if now == nil {
		now = time.Now
	}
	return &SyntheticSource{rng: rand.New(rand.NewSource(seed)), now: now}
}

var _ Source = (*SyntheticSource)(nil)

// Crashes emits events with eventId 1000-1099 and timestamps in (since, now].
// A zero since uses a 30 day window.
func (s *SyntheticSource) Crashes(ctx context.Context, devices []model.DeviceRecord, since time.Time) ([]model.CrashEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if since.IsZero() {
		since = now.AddDate(0, 0, -30)
	}
	window := now.Sub(since)
	if window <= 0 {
		return []model.CrashEvent{}, nil
	}

	out := make([]model.CrashEvent, 0)
	for _, d := range devices {
		for i := 0; i < d.CrashCount; i++ {
			offset := time.Duration(s.rng.Int63n(int64(window)))
			out = append(out, model.CrashEvent{
				DeviceID:   d.DeviceID,
				DeviceName: d.ComputerName,
				User:       d.LoggedOnUser,
				Source:     mockdata.CrashSources[s.rng.Intn(len(mockdata.CrashSources))],
				EventID:    1000 + s.rng.Intn(100),
				Message:    mockdata.CrashMessages[s.rng.Intn(len(mockdata.CrashMessages))],
				Timestamp:  now.Add(-offset),
			})
		}
	}
	return out, nil
}

// NewSource selects a source by kind.
func NewSource(kind string, api telemetry.API, log logger.Logger, concurrency int) (Source, error) {
	switch kind {
	case "", KindPayload:
		return NewPayloadSource(api, log, concurrency), nil
	case KindSynthetic:
		return NewSyntheticSource(time.Now().UnixNano(), nil), nil
	default:
		return nil, fmt.Errorf("unknown crash source %q (valid: %v)", kind, kinds)
	}
}

var kinds = []string{KindPayload, KindSynthetic}
