package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"tracepoint-dashboard-api/internal/analytics"
	"tracepoint-dashboard-api/internal/logger"
	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/service"
	"tracepoint-dashboard-api/internal/telemetry"
	"tracepoint-dashboard-api/pkg/validation"
)

// Constants for timeouts
const (
	DefaultTimeout     = 10 * time.Second
	LongRunningTimeout = 30 * time.Second
	HealthCheckTimeout = 3 * time.Second
)

// statusFilters are the accepted values of the status query parameter.
var statusFilters = func() []string {
	out := []string{analytics.StatusAll}
	for _, s := range model.AllStatuses {
		out = append(out, string(s))
	}
	return out
}()

// DashboardHandler handles the HTTP requests for the dashboard views.
type DashboardHandler struct {
	Service  DashboardService
	Upstream HealthChecker
	Logger   logger.Logger

	// Helper components for cleaner code organization
	ErrorHandler   *ErrorHandler
	ResponseHelper *ResponseHelper
}

// NewDashboardHandler creates a new DashboardHandler with dependencies and
// helpers. A nil upstream reports the upstream as reachable.
func NewDashboardHandler(svc DashboardService, upstream HealthChecker, log logger.Logger) *DashboardHandler {
	if log == nil {
		log = logger.Noop()
	}

	return &DashboardHandler{
		Service:        svc,
		Upstream:       upstream,
		Logger:         log,
		ErrorHandler:   NewErrorHandler(log),
		ResponseHelper: NewResponseHelper(),
	}
}

// stateStatus is 502 for a failed upstream fetch and 200 otherwise.
func stateStatus(state telemetry.State) int {
	if state == telemetry.StateFailed {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

func validateSearchParams(q url.Values, errs map[string]string, fields ...string) {
	for _, field := range fields {
		if err := validation.ValidateSearch(field, q.Get(field)); err != nil {
			errs[field] = err.Error()
		}
	}
}

// parseDeviceListQuery reads the devices page query parameters.
func parseDeviceListQuery(r *http.Request, pagination PaginationParams) (service.DeviceListQuery, map[string]string) {
	q := r.URL.Query()
	errs := make(map[string]string)

	validateSearchParams(q, errs, "search", "deviceId", "computerName", "loggedUser")

	status := strings.ToLower(strings.TrimSpace(q.Get("status")))
	if err := validation.ValidateOneOf("status", status, statusFilters); err != nil {
		errs["status"] = err.Error()
	}

	from, err := validation.ParseDate("dateFrom", q.Get("dateFrom"), false)
	if err != nil {
		errs["dateFrom"] = err.Error()
	}
	to, err := validation.ParseDate("dateTo", q.Get("dateTo"), true)
	if err != nil {
		errs["dateTo"] = err.Error()
	}
	if err := validation.ValidateDateRange(from, to); err != nil {
		errs["dateRange"] = err.Error()
	}

	sortField := q.Get("sort")
	if sortField != "" && !analytics.ValidSortField(analytics.DeviceSortFields, sortField) {
		errs["sort"] = "sort must be one of: " + strings.Join(analytics.DeviceSortFields, ", ")
	}
	dir, err := analytics.ParseDirection(q.Get("order"), analytics.Asc)
	if err != nil {
		errs["order"] = err.Error()
	}

	return service.DeviceListQuery{
		Filter: analytics.DeviceFilter{
			DeviceID:     q.Get("deviceId"),
			ComputerName: q.Get("computerName"),
			LoggedUser:   q.Get("loggedUser"),
			Search:       q.Get("search"),
			DateFrom:     from,
			DateTo:       to,
			Status:       status,
		},
		SortField: sortField,
		Direction: dir,
		Page:      pagination.Page,
		PageSize:  pagination.PageSize,
	}, errs
}

// ListDevicesHandler handles the devices page with filters, sorting and
// pagination.
func (h *DashboardHandler) ListDevicesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, LongRunningTimeout)
	defer cancel()

	paginationParams := h.ResponseHelper.ParsePaginationParams(r)
	query, validationErrors := parseDeviceListQuery(r, paginationParams)
	if len(validationErrors) > 0 {
		h.ErrorHandler.HandleValidationErrors(ctx, w, validationErrors)
		return
	}

	list, err := h.Service.ListDevices(ctx, query)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "devices")
		return
	}

	paginationMeta := h.ResponseHelper.CalculatePaginationMeta(paginationParams, list.Total)
	responseData := h.ResponseHelper.CreatePaginatedListResponseData(list.Devices, paginationMeta, map[string]interface{}{
		"devices": list.Devices,
		"state":   list.State,
		"message": list.Message,
		"counts":  list.Counts,
	})
	delete(responseData, "items") // Remove generic "items" key since we have "devices"

	h.ResponseHelper.SetCommonHeaders(w)
	h.ErrorHandler.SendJSONResponse(w, stateStatus(list.State), responseData)
}

// GetDeviceHandler handles the device details page.
func (h *DashboardHandler) GetDeviceHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, LongRunningTimeout)
	defer cancel()

	deviceID := mux.Vars(r)["deviceId"]

	detail, err := h.Service.DeviceDetail(ctx, deviceID)
	if err != nil {
		if errors.Is(err, service.ErrDeviceNotFound) {
			h.ErrorHandler.SendDeviceNotFound(ctx, w, deviceID)
			return
		}
		h.ErrorHandler.HandleServiceError(ctx, w, err, "device")
		return
	}

	h.ResponseHelper.SetCommonHeaders(w)
	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, detail)
}

// CrashAnalysisHandler handles the crash analysis page.
func (h *DashboardHandler) CrashAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, LongRunningTimeout)
	defer cancel()

	q := r.URL.Query()
	validationErrors := make(map[string]string)

	days, err := validation.ParseDays(q.Get("days"), 0)
	if err != nil {
		validationErrors["days"] = err.Error()
	}
	validateSearchParams(q, validationErrors, "filter")

	sortField := q.Get("sort")
	if sortField != "" && !analytics.ValidSortField(analytics.CrashSortFields, sortField) {
		validationErrors["sort"] = "sort must be one of: " + strings.Join(analytics.CrashSortFields, ", ")
	}
	dir, err := analytics.ParseDirection(q.Get("order"), analytics.Desc)
	if err != nil {
		validationErrors["order"] = err.Error()
	}

	if len(validationErrors) > 0 {
		h.ErrorHandler.HandleValidationErrors(ctx, w, validationErrors)
		return
	}

	analysis, err := h.Service.CrashAnalysis(ctx, service.CrashQuery{
		Days:      days,
		Filter:    q.Get("filter"),
		SortField: sortField,
		Direction: dir,
	})
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "crash data")
		return
	}

	h.ResponseHelper.SetCommonHeaders(w)
	h.ErrorHandler.SendJSONResponse(w, stateStatus(analysis.State), analysis)
}

// TrendsHandler handles the performance trends page.
func (h *DashboardHandler) TrendsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, LongRunningTimeout)
	defer cancel()

	days, err := validation.ParseDays(r.URL.Query().Get("days"), 0)
	if err != nil {
		h.ErrorHandler.HandleValidationErrors(ctx, w, map[string]string{"days": err.Error()})
		return
	}

	report, err := h.Service.Trends(ctx, days)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "trends")
		return
	}

	h.ResponseHelper.SetCommonHeaders(w)
	h.ErrorHandler.SendJSONResponse(w, stateStatus(report.State), report)
}

// OverviewHandler handles the dashboard landing page.
func (h *DashboardHandler) OverviewHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, LongRunningTimeout)
	defer cancel()

	report, err := h.Service.Overview(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "dashboard")
		return
	}

	h.ResponseHelper.SetCommonHeaders(w)
	h.ErrorHandler.SendJSONResponse(w, stateStatus(report.State), report)
}

// InvalidateCacheHandler drops cached upstream queries so the next request
// refetches.
func (h *DashboardHandler) InvalidateCacheHandler(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	n := h.Service.InvalidateCache(prefix)

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Cache invalidated", map[string]interface{}{
		"invalidated": n,
		"prefix":      prefix,
	})
}

// HealthHandler provides a health check endpoint
func (h *DashboardHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	healthy := true
	if h.Upstream != nil {
		ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
		defer cancel()
		healthy = h.Upstream.IsHealthy(ctx)
	}

	healthData := h.ResponseHelper.CreateHealthCheckData(healthy)
	healthData["cache"] = h.Service.CacheStats()

	message := "Service is healthy"
	if !healthy {
		message = "Service is degraded: telemetry service unreachable"
	}
	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, message, healthData)
}
