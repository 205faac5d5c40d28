package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tracepoint-dashboard-api/internal/logger"
	"tracepoint-dashboard-api/internal/model"
)

// Upstream endpoint paths.
const (
	DevicesPath   = "/api/devices_laststatus"
	DeviceLogPath = "/api/device/log"
	PayloadPath   = "/api/jsonfile"
)

// ISOLayout is the timestamp format sent in query strings.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// API is the read surface of the telemetry service used by the dashboard.
type API interface {
	Devices(ctx context.Context, q DeviceQuery) Result[model.DeviceRecord]
	DeviceLogs(ctx context.Context, deviceID string) Result[model.LogEntry]
	Payload(ctx context.Context, file string) (*model.Payload, error)
}

// Config holds configuration for the telemetry API client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	MaxPayloadSize int64
	UserAgent      string
}

// DefaultConfig returns a default configuration for the given base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		Timeout:        10 * time.Second,
		RetryAttempts:  2,
		RetryDelay:     500 * time.Millisecond,
		MaxPayloadSize: 10 * 1024 * 1024, // 10MB
		UserAgent:      "tracepoint-dashboard-api/1.0",
	}
}

// DeviceQuery is the coarse, server-side device filter.
type DeviceQuery struct {
	DeviceID     string
	ComputerName string
	LoggedUser   string
	DateFrom     time.Time
	DateTo       time.Time
}

// Values encodes the query. Every key is always present, matching what the
// telemetry API expects.
func (q DeviceQuery) Values() url.Values {
	v := url.Values{}
	v.Set("deviceId", q.DeviceID)
	v.Set("computerName", q.ComputerName)
	v.Set("loggedUser", q.LoggedUser)
	v.Set("dateFrom", formatISO(q.DateFrom))
	v.Set("dateTo", formatISO(q.DateTo))
	return v
}

// Key is a stable cache key for the query.
func (q DeviceQuery) Key() string {
	return "devices?" + q.Values().Encode()
}

func formatISO(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(ISOLayout)
}

// Client is the HTTP implementation of API.
type Client struct {
	config Config
	client *http.Client
	logger logger.Logger
}

// NewClient creates a telemetry client. A nil logger discards output.
func NewClient(config Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.Noop()
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultConfig("").UserAgent
	}
	if config.MaxPayloadSize <= 0 {
		config.MaxPayloadSize = DefaultConfig("").MaxPayloadSize
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: log,
	}
}

var _ API = (*Client)(nil)

// Devices fetches the last known status of every device matching q.
func (c *Client) Devices(ctx context.Context, q DeviceQuery) Result[model.DeviceRecord] {
	var envelope struct {
		Devices *[]wireRecord `json:"devices"`
	}
	if err := c.getJSON(ctx, DevicesPath, q.Values(), &envelope); err != nil {
		return Failed[model.DeviceRecord](err)
	}
	if envelope.Devices == nil {
		return Failed[model.DeviceRecord](&FetchError{
			Kind: KindDecode, Endpoint: DevicesPath, Err: errors.New(`missing "devices" key`),
		})
	}

	devices, dropped := normalizeDevices(*envelope.Devices)
	if dropped > 0 {
		c.logger.Warn("Dropped %d device records without an identifier", dropped)
	}
	c.logger.Debug("Fetched %d devices", len(devices))
	return OK(devices)
}

// DeviceLogs fetches the historical snapshots of one device.
func (c *Client) DeviceLogs(ctx context.Context, deviceID string) Result[model.LogEntry] {
	var envelope struct {
		DeviceLogs *[]wireRecord `json:"devicelogs"`
	}
	params := url.Values{}
	params.Set("deviceId", deviceID)
	if err := c.getJSON(ctx, DeviceLogPath, params, &envelope); err != nil {
		return Failed[model.LogEntry](err)
	}
	if envelope.DeviceLogs == nil {
		return Failed[model.LogEntry](&FetchError{
			Kind: KindDecode, Endpoint: DeviceLogPath, Err: errors.New(`missing "devicelogs" key`),
		})
	}

	logs, dropped := normalizeLogs(*envelope.DeviceLogs, deviceID)
	if dropped > 0 {
		c.logger.Warn("Dropped %d log records for device %s", dropped, deviceID)
	}
	return OK(logs)
}

// Payload fetches the raw JSON blob of one snapshot.
func (c *Client) Payload(ctx context.Context, file string) (*model.Payload, error) {
	params := url.Values{}
	params.Set("file", file)

	var payload model.Payload
	if err := c.getJSON(ctx, PayloadPath, params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// getJSON performs a GET with retries and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &FetchError{Kind: KindCanceled, Endpoint: path, Err: ctx.Err()}
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			c.logger.Debug("Retrying %s (attempt %d/%d)", path, attempt+1, c.config.RetryAttempts+1)
		}

		err := c.getAttempt(ctx, path, params, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var fe *FetchError
		if errors.As(err, &fe) && !fe.Retryable() {
			return err
		}
		c.logger.Warn("Telemetry request %s attempt %d failed: %v", path, attempt+1, err)
	}
	return lastErr
}

// getAttempt performs a single request.
func (c *Client) getAttempt(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := c.config.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &FetchError{Kind: KindTransport, Endpoint: path, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return &FetchError{Kind: KindCanceled, Endpoint: path, Err: ctx.Err()}
		}
		return &FetchError{Kind: KindTransport, Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &FetchError{Kind: KindStatus, Endpoint: path, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxPayloadSize+1))
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return &FetchError{Kind: KindCanceled, Endpoint: path, Err: ctx.Err()}
		}
		return &FetchError{Kind: KindTransport, Endpoint: path, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(body)) > c.config.MaxPayloadSize {
		return &FetchError{Kind: KindDecode, Endpoint: path,
			Err: fmt.Errorf("response too large (max %d bytes)", c.config.MaxPayloadSize)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &FetchError{Kind: KindDecode, Endpoint: path, Err: err}
	}
	return nil
}

// IsHealthy checks whether the telemetry service answers at all.
func (c *Client) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.config.BaseURL+DevicesPath, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 500
}
