package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tracepoint-dashboard-api/internal/cache"
	"tracepoint-dashboard-api/internal/config"
	"tracepoint-dashboard-api/internal/crashes"
	"tracepoint-dashboard-api/internal/handler"
	"tracepoint-dashboard-api/internal/middleware"
	"tracepoint-dashboard-api/internal/mockapi"
	"tracepoint-dashboard-api/internal/mockdata"
	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/repository"
	"tracepoint-dashboard-api/internal/router"
	"tracepoint-dashboard-api/internal/service"
	"tracepoint-dashboard-api/internal/telemetry"
)

// IntegrationTestSuite holds the test dependencies
type IntegrationTestSuite struct {
	Upstream *mockapi.Server
	Fleet    []mockdata.Device
	Router   http.Handler
	Config   *config.Config
}

// setupIntegrationTest wires the full stack against a mock telemetry service
func setupIntegrationTest(t *testing.T) *IntegrationTestSuite {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	fleet := mockdata.NewGenerator(42, time.Now()).Fleet(20, 5)
	upstream := mockapi.New(fleet, nil)
	ts := httptest.NewServer(upstream)
	t.Cleanup(ts.Close)

	cfg := &config.Config{
		Security: config.SecurityConfig{
			RateLimitRPS:    100,
			RateLimitBurst:  200,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			EnableCORS:      true,
			AllowedOrigins:  []string{"*"},
			TrustedProxies:  []string{},
		},
	}

	clientCfg := telemetry.DefaultConfig(ts.URL)
	clientCfg.RetryAttempts = 0
	clientCfg.Timeout = 5 * time.Second
	client := telemetry.NewClient(clientCfg, nil)

	dashboard := service.NewDashboardService(
		client,
		crashes.NewPayloadSource(client, nil, 4),
		cache.New[model.DeviceRecord](time.Minute, nil),
		telemetry.NewLatest(),
		service.DashboardOptions{},
		nil,
	)
	auth := service.NewAuthService(repository.NewMemoryUserRepository(), 4, nil)
	if err := auth.Seed(t.Context()); err != nil {
		t.Fatalf("Failed to seed users: %v", err)
	}

	dashboardHandler := handler.NewDashboardHandler(dashboard, client, nil)
	r := router.NewRouter(router.Handlers{
		Dashboard: dashboardHandler,
		Auth:      handler.NewAuthHandler(auth, nil),
		Stream:    handler.NewOverviewStreamHandler(dashboardHandler, time.Minute, cfg.Security.AllowedOrigins),
	}, cfg, nil)

	return &IntegrationTestSuite{
		Upstream: upstream,
		Fleet:    fleet,
		Router:   middleware.NewLoggingMiddleware(nil).LogRequests(r),
		Config:   cfg,
	}
}

func (s *IntegrationTestSuite) get(t *testing.T, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", url, nil)
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)
	return resp
}

// Test helper to parse JSON response
func parseJSONResponse(t *testing.T, resp *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("Failed to decode JSON response: %v. Body: %s", err, resp.Body.String())
	}
}

type deviceListResponse struct {
	Devices    []model.DeviceView `json:"devices"`
	State      string             `json:"state"`
	Message    string             `json:"message"`
	Counts     map[string]int     `json:"counts"`
	Pagination struct {
		Page       int `json:"page"`
		TotalItems int `json:"total_items"`
	} `json:"pagination"`
}

// Integration Tests

func TestIntegration_DeviceList(t *testing.T) {
	suite := setupIntegrationTest(t)

	t.Run("All Devices", func(t *testing.T) {
		resp := suite.get(t, "/api/v1/devices?page_size=100")
		if resp.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusOK, resp.Code, resp.Body.String())
		}

		var body deviceListResponse
		parseJSONResponse(t, resp, &body)

		if body.State != string(telemetry.StateOK) {
			t.Errorf("Expected state ok, got %s", body.State)
		}
		if len(body.Devices) != len(suite.Fleet) {
			t.Errorf("Expected %d devices, got %d", len(suite.Fleet), len(body.Devices))
		}
		if body.Counts["total"] != len(suite.Fleet) {
			t.Errorf("Expected total count %d, got %d", len(suite.Fleet), body.Counts["total"])
		}
		sum := body.Counts["online"] + body.Counts["warning"] + body.Counts["error"] + body.Counts["offline"]
		if sum != body.Counts["total"] {
			t.Errorf("Status counts %v do not add up to total", body.Counts)
		}
		for i := 1; i < len(body.Devices); i++ {
			if strings.ToLower(body.Devices[i-1].ComputerName) > strings.ToLower(body.Devices[i].ComputerName) {
				t.Errorf("Devices not sorted by computer name at %d", i)
			}
		}
	})

	t.Run("Search", func(t *testing.T) {
		target := suite.Fleet[4]
		resp := suite.get(t, "/api/v1/devices?search="+strings.ToLower(target.DeviceID[:8]))

		var body deviceListResponse
		parseJSONResponse(t, resp, &body)

		found := false
		for _, d := range body.Devices {
			if d.DeviceID == target.DeviceID {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected device %s in search results", target.DeviceID)
		}
	})

	t.Run("No Matches", func(t *testing.T) {
		resp := suite.get(t, "/api/v1/devices?search=zz-no-such-device")
		if resp.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d", http.StatusOK, resp.Code)
		}

		var body deviceListResponse
		parseJSONResponse(t, resp, &body)
		if body.State != string(telemetry.StateEmpty) {
			t.Errorf("Expected state empty, got %s", body.State)
		}
		if body.Message != "No devices found matching 'zz-no-such-device'" {
			t.Errorf("Unexpected message %q", body.Message)
		}
	})

	t.Run("Invalid Parameters", func(t *testing.T) {
		resp := suite.get(t, "/api/v1/devices?status=sleeping&order=sideways")
		if resp.Code != http.StatusBadRequest {
			t.Errorf("Expected status %d, got %d", http.StatusBadRequest, resp.Code)
		}
	})
}

func TestIntegration_UpstreamFailure(t *testing.T) {
	suite := setupIntegrationTest(t)
	suite.Upstream.FailWith(http.StatusInternalServerError)

	resp := suite.get(t, "/api/v1/devices")
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusBadGateway, resp.Code, resp.Body.String())
	}

	var body deviceListResponse
	parseJSONResponse(t, resp, &body)
	if body.State != string(telemetry.StateFailed) {
		t.Errorf("Expected state failed, got %s", body.State)
	}
	if !strings.HasPrefix(body.Message, "Failed to load devices: ") {
		t.Errorf("Unexpected message %q", body.Message)
	}

	// Failures are not cached: the next request sees the recovered upstream
	suite.Upstream.FailWith(0)
	resp = suite.get(t, "/api/v1/devices")
	if resp.Code != http.StatusOK {
		t.Errorf("Expected recovery with status %d, got %d", http.StatusOK, resp.Code)
	}

	suite.Upstream.FailWith(http.StatusServiceUnavailable)
	resp = suite.get(t, "/api/v1/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected health status %d, got %d", http.StatusOK, resp.Code)
	}
	var health struct {
		Data map[string]interface{} `json:"data"`
	}
	parseJSONResponse(t, resp, &health)
	if health.Data["status"] != "degraded" {
		t.Errorf("Expected degraded health, got %v", health.Data["status"])
	}
}

func TestIntegration_DeviceDetail(t *testing.T) {
	suite := setupIntegrationTest(t)
	target := suite.Fleet[0]

	t.Run("Known Device", func(t *testing.T) {
		resp := suite.get(t, "/api/v1/devices/"+target.DeviceID)
		if resp.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusOK, resp.Code, resp.Body.String())
		}

		var detail service.DeviceDetail
		parseJSONResponse(t, resp, &detail)
		if detail.Device.DeviceID != target.DeviceID {
			t.Errorf("Expected device %s, got %s", target.DeviceID, detail.Device.DeviceID)
		}
		if len(detail.History) != len(target.History) {
			t.Errorf("Expected %d history points, got %d", len(target.History), len(detail.History))
		}
		for i := 1; i < len(detail.Recent); i++ {
			if detail.Recent[i-1].Timestamp.Before(detail.Recent[i].Timestamp) {
				t.Errorf("Recent snapshots not newest first at %d", i)
			}
		}
		if len(detail.Warnings) != 0 {
			t.Errorf("Unexpected warnings %v", detail.Warnings)
		}
	})

	for name, id := range map[string]string{
		"Unknown Device":   "00000000-0000-4000-8000-000000000000",
		"Malformed Device": "bad%20id!",
	} {
		t.Run(name, func(t *testing.T) {
			resp := suite.get(t, "/api/v1/devices/"+id)
			if resp.Code != http.StatusNotFound {
				t.Fatalf("Expected status %d, got %d", http.StatusNotFound, resp.Code)
			}

			var body handler.ErrorResponse
			parseJSONResponse(t, resp, &body)
			if body.Error != "Device Not Found" {
				t.Errorf("Expected 'Device Not Found', got %q", body.Error)
			}
			if body.Back != "/devices" {
				t.Errorf("Expected back link /devices, got %q", body.Back)
			}
		})
	}
}

func TestIntegration_CrashAnalysis(t *testing.T) {
	suite := setupIntegrationTest(t)

	// Devices seen since 00:00 UTC five days ago contribute crashes from the
	// last five days
	now := time.Now().UTC()
	y, m, day := now.AddDate(0, 0, -5).Date()
	seenSince := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	since := now.AddDate(0, 0, -5)

	expected := 0
	for _, d := range suite.Fleet {
		if !d.Record().Timestamp.After(seenSince) {
			continue
		}
		for _, p := range d.History {
			for _, c := range p.Crashes {
				if c.Timestamp.After(since) {
					expected++
				}
			}
		}
	}

	resp := suite.get(t, "/api/v1/crashes?days=5")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusOK, resp.Code, resp.Body.String())
	}

	var analysis service.CrashAnalysis
	parseJSONResponse(t, resp, &analysis)

	if analysis.Days != 5 {
		t.Errorf("Expected 5 days, got %d", analysis.Days)
	}
	if analysis.Report.TotalCrashes != expected {
		t.Errorf("Expected %d crashes, got %d", expected, analysis.Report.TotalCrashes)
	}
	total := 0
	for _, g := range analysis.Report.Groups {
		total += g.Occurrences
	}
	if total != analysis.Report.TotalCrashes {
		t.Errorf("Group occurrences %d do not add up to %d", total, analysis.Report.TotalCrashes)
	}
	for i := 1; i < len(analysis.Report.Events); i++ {
		if analysis.Report.Events[i-1].Timestamp.Before(analysis.Report.Events[i].Timestamp) {
			t.Errorf("Crash events not newest first at %d", i)
		}
	}

	resp = suite.get(t, "/api/v1/crashes?days=0")
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d for days=0, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestIntegration_OverviewAndTrends(t *testing.T) {
	suite := setupIntegrationTest(t)

	resp := suite.get(t, "/api/v1/overview")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusOK, resp.Code, resp.Body.String())
	}
	var overview service.OverviewReport
	parseJSONResponse(t, resp, &overview)
	if overview.Summary.TotalDevices != len(suite.Fleet) {
		t.Errorf("Expected %d devices, got %d", len(suite.Fleet), overview.Summary.TotalDevices)
	}
	if len(overview.Summary.OSDistribution) != 3 {
		t.Errorf("Expected 3 OS buckets, got %d", len(overview.Summary.OSDistribution))
	}
	if overview.Summary.LatestDevice == nil {
		t.Error("Expected a latest device")
	}

	resp = suite.get(t, "/api/v1/trends?days=7")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusOK, resp.Code, resp.Body.String())
	}
	var trends service.TrendReport
	parseJSONResponse(t, resp, &trends)
	if len(trends.Daily) == 0 {
		t.Error("Expected daily trend points")
	}
	for i := 1; i < len(trends.Daily); i++ {
		if trends.Daily[i-1].Date >= trends.Daily[i].Date {
			t.Errorf("Daily trends not in ascending date order at %d", i)
		}
	}
}

func TestIntegration_CacheAndRoutes(t *testing.T) {
	suite := setupIntegrationTest(t)

	suite.get(t, "/api/v1/devices")
	suite.Upstream.FailWith(http.StatusInternalServerError)

	// Served from cache while the upstream is down
	resp := suite.get(t, "/api/v1/devices")
	if resp.Code != http.StatusOK {
		t.Errorf("Expected cached response with status %d, got %d", http.StatusOK, resp.Code)
	}

	req := httptest.NewRequest("POST", "/api/v1/cache/invalidate", nil)
	resp = httptest.NewRecorder()
	suite.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, resp.Code)
	}

	resp = suite.get(t, "/api/v1/devices")
	if resp.Code != http.StatusBadGateway {
		t.Errorf("Expected status %d after invalidation, got %d", http.StatusBadGateway, resp.Code)
	}

	resp = suite.get(t, "/api/v1/nope")
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status %d for unknown route, got %d", http.StatusNotFound, resp.Code)
	}
	var body handler.ErrorResponse
	parseJSONResponse(t, resp, &body)
	if body.Code != "NOT_FOUND" {
		t.Errorf("Expected NOT_FOUND, got %s", body.Code)
	}

	req = httptest.NewRequest("DELETE", "/api/v1/devices", nil)
	resp = httptest.NewRecorder()
	suite.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d for wrong method, got %d", http.StatusMethodNotAllowed, resp.Code)
	}
	var methodBody handler.ErrorResponse
	parseJSONResponse(t, resp, &methodBody)
	if methodBody.Code != "METHOD_NOT_ALLOWED" {
		t.Errorf("Expected METHOD_NOT_ALLOWED, got %s", methodBody.Code)
	}
}

func TestIntegration_Auth(t *testing.T) {
	suite := setupIntegrationTest(t)

	body := strings.NewReader(`{"email":"admin@example.com","password":"password"}`)
	req := httptest.NewRequest("POST", "/api/v1/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	suite.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusOK, resp.Code, resp.Body.String())
	}

	var login struct {
		Data service.Session `json:"data"`
	}
	parseJSONResponse(t, resp, &login)
	if login.Data.Token == "" {
		t.Fatal("Expected a session token")
	}

	req = httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.Token)
	resp = httptest.NewRecorder()
	suite.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.Code)
	}
}
