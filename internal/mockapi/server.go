// Package mockapi serves the upstream telemetry endpoints from a generated
// fleet so the dashboard can run without a real backend.
package mockapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"tracepoint-dashboard-api/internal/logger"
	"tracepoint-dashboard-api/internal/mockdata"
	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/telemetry"
)

// Server is an http.Handler emulating the telemetry service.
type Server struct {
	mu       sync.RWMutex
	devices  []mockdata.Device
	payloads map[string]model.Payload
	failWith int
	router   *mux.Router
	logger   logger.Logger
}

// New creates a server over devices.
func New(devices []mockdata.Device, log logger.Logger) *Server {
	if log == nil {
		log = logger.Noop()
	}
	s := &Server{router: mux.NewRouter(), logger: log}
	s.SetDevices(devices)

	s.router.HandleFunc(telemetry.DevicesPath, s.handleDevices).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc(telemetry.DeviceLogPath, s.handleDeviceLogs).Methods(http.MethodGet)
	s.router.HandleFunc(telemetry.PayloadPath, s.handlePayload).Methods(http.MethodGet)
	return s
}

// SetDevices replaces the served fleet.
func (s *Server) SetDevices(devices []mockdata.Device) {
	payloads := make(map[string]model.Payload)
	for _, d := range devices {
		for i, p := range d.History {
			payloads[mockdata.PayloadFile(d.DeviceID, i)] = p
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = devices
	s.payloads = payloads
}

// FailWith makes every endpoint answer with status code. Zero restores normal
// responses.
func (s *Server) FailWith(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = code
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	code := s.failWith
	s.mu.RUnlock()
	if code != 0 {
		s.logger.Debug("Mock API failing %s %s with %d", r.Method, r.URL.Path, code)
		http.Error(w, http.StatusText(code), code)
		return
	}
	s.router.ServeHTTP(w, r)
}

// wireDevice mirrors the field names the production telemetry service uses.
type wireDevice struct {
	RowKey       string   `json:"rowKey"`
	ComputerName string   `json:"computerName"`
	LoggedUser   string   `json:"loggedUser"`
	OSVersion    string   `json:"osVersion"`
	Timestamp    string   `json:"timestamp"`
	CPU          int      `json:"cpu"`
	RAM          int      `json:"ram"`
	DiskUsing    int      `json:"diskUsing"`
	Disk         wireDisk `json:"disk"`
	CrashesCnt   int      `json:"crashesCnt"`
	File         string   `json:"file,omitempty"`
}

type wireDisk struct {
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

func toWire(d model.DeviceRecord) wireDevice {
	return wireDevice{
		RowKey:       d.DeviceID,
		ComputerName: d.ComputerName,
		LoggedUser:   d.LoggedOnUser,
		OSVersion:    d.OSVersion,
		Timestamp:    d.Timestamp.UTC().Format(telemetry.ISOLayout),
		CPU:          d.CPU,
		RAM:          d.RAM,
		DiskUsing:    d.Disk.Percentage,
		Disk:         wireDisk{Used: d.Disk.Used, Total: d.Disk.Total},
		CrashesCnt:   d.CrashCount,
		File:         d.PayloadURL,
	}
}

func parseBound(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func containsFold(s, substr string) bool {
	return substr == "" || strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := parseBound(q.Get("dateFrom")), parseBound(q.Get("dateTo"))

	s.mu.RLock()
	out := make([]wireDevice, 0, len(s.devices))
	for _, d := range s.devices {
		rec := d.Record()
		if !containsFold(rec.DeviceID, q.Get("deviceId")) ||
			!containsFold(rec.ComputerName, q.Get("computerName")) ||
			!containsFold(rec.LoggedOnUser, q.Get("loggedUser")) {
			continue
		}
		if (!from.IsZero() && rec.Timestamp.Before(from)) || (!to.IsZero() && rec.Timestamp.After(to)) {
			continue
		}
		out = append(out, toWire(rec))
	}
	s.mu.RUnlock()

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, map[string]interface{}{"devices": out})
}

func (s *Server) handleDeviceLogs(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("deviceId")

	s.mu.RLock()
	out := make([]wireDevice, 0)
	for _, d := range s.devices {
		if d.DeviceID != id {
			continue
		}
		for i := len(d.History) - 1; i >= 0; i-- {
			out = append(out, toWire(d.Snapshot(i)))
		}
	}
	s.mu.RUnlock()

	writeJSON(w, map[string]interface{}{"devicelogs": out})
}

func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")

	s.mu.RLock()
	p, ok := s.payloads[file]
	s.mu.RUnlock()

	if !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
