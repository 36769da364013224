package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"marstek-ble-bridge/pkg/controls"
	"marstek-ble-bridge/pkg/diagnostics"
	bridgeerrors "marstek-ble-bridge/pkg/errors"
	"marstek-ble-bridge/pkg/logger"
	"marstek-ble-bridge/pkg/state"
)

// StateSource provides the current device state
type StateSource interface {
	Snapshot() state.Snapshot
}

// ReportSource provides the diagnostics report
type ReportSource interface {
	Report() diagnostics.Report
}

// ControlSource lists and actuates device controls
type ControlSource interface {
	All() []controls.Control
	Get(key string) (controls.Control, bool)
	Actuate(ctx context.Context, key, value string) error
	State(key string, snap state.Snapshot) (string, bool)
}

// IntervalSetter changes the fast poll interval
type IntervalSetter interface {
	SetPollInterval(d time.Duration) time.Duration
}

// Deps are the collaborators served by the API. Metrics may be nil.
type Deps struct {
	Health   *HealthHandler
	State    StateSource
	Reports  ReportSource
	Controls ControlSource
	Interval IntervalSetter
	Metrics  http.Handler
	// OnChange runs after a control or the poll interval was changed
	OnChange func(key string)
}

// Server is the local HTTP API
type Server struct {
	addr   string
	deps   Deps
	router *mux.Router
	server *http.Server
}

// NewServer creates a server listening on addr
func NewServer(addr string, deps Deps) *Server {
	s := &Server{addr: addr, deps: deps, router: mux.NewRouter()}
	s.setupRoutes()
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Handle("/health", s.deps.Health).Methods("GET")
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics).Methods("GET")
	}
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/fields/{name}", s.handleField).Methods("GET")
	api.HandleFunc("/diagnostics", s.handleDiagnostics).Methods("GET")
	api.HandleFunc("/controls", s.handleListControls).Methods("GET")
	api.HandleFunc("/controls/{key}", s.handleGetControl).Methods("GET")
	api.HandleFunc("/controls/{key}", s.handleSetControl).Methods("POST")
	api.HandleFunc("/poll-interval", s.handleSetInterval).Methods("PUT")
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      45 * time.Second, // control writes wait for the device
		IdleTimeout:       60 * time.Second,
	}

	logger.LogInfo("🌐 HTTP API listening on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	logger.LogDebug("🌐 HTTP API stopped")
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<html>
<head><title>Marstek BLE Bridge</title></head>
<body>
<h1>Marstek BLE Bridge</h1>
<ul>
<li><a href="/health">Health Check</a></li>
<li><a href="/api/v1/state">State</a></li>
<li><a href="/api/v1/diagnostics">Diagnostics</a></li>
<li><a href="/api/v1/controls">Controls</a></li>
<li><a href="/metrics">Metrics</a> (if enabled)</li>
</ul>
</body>
</html>`)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.State.Snapshot()
	doc := snap.Map()
	for k, v := range snap.DerivedMap() {
		doc[k] = v
	}
	writeJSON(w, map[string]any{
		"timestamp": snap.TakenAt().UTC(),
		"fields":    doc,
	}, http.StatusOK)
}

// FieldResponse is one field with its update metadata
type FieldResponse struct {
	Name     string          `json:"name"`
	Unit     string          `json:"unit,omitempty"`
	Set      bool            `json:"set"`
	Value    any             `json:"value,omitempty"`
	Metadata *state.Metadata `json:"metadata,omitempty"`
}

func (s *Server) handleField(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	id, ok := state.FieldByName(name)
	if !ok {
		writeError(w, fmt.Sprintf("unknown field %q", name), http.StatusNotFound)
		return
	}
	snap := s.deps.State.Snapshot()
	resp := FieldResponse{Name: name, Unit: id.Unit()}
	if v, ok := snap.Map()[name]; ok {
		resp.Set = true
		resp.Value = v
	}
	if md, ok := snap.Metadata(id); ok {
		resp.Metadata = &md
	}
	writeJSON(w, resp, http.StatusOK)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.deps.Reports.Report(), http.StatusOK)
}

// ControlResponse describes a control and its position
type ControlResponse struct {
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Options []string `json:"options,omitempty"`
	State   string   `json:"state,omitempty"`
	Assumed bool     `json:"assumed"`
}

func (s *Server) controlResponse(ctl controls.Control, snap state.Snapshot) ControlResponse {
	resp := ControlResponse{
		Key:     ctl.Key,
		Name:    ctl.Name,
		Kind:    string(ctl.Kind),
		Options: ctl.OptionLabels(),
		Assumed: ctl.Assumed(),
	}
	if position, ok := s.deps.Controls.State(ctl.Key, snap); ok {
		resp.State = position
	}
	return resp
}

func (s *Server) handleListControls(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.State.Snapshot()
	all := s.deps.Controls.All()
	out := make([]ControlResponse, 0, len(all))
	for _, ctl := range all {
		out = append(out, s.controlResponse(ctl, snap))
	}
	writeJSON(w, map[string]any{"controls": out, "count": len(out)}, http.StatusOK)
}

func (s *Server) handleGetControl(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	ctl, ok := s.deps.Controls.Get(key)
	if !ok {
		writeError(w, fmt.Sprintf("unknown control %q", key), http.StatusNotFound)
		return
	}
	writeJSON(w, s.controlResponse(ctl, s.deps.State.Snapshot()), http.StatusOK)
}

type setControlRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSetControl(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var req setControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := s.deps.Controls.Actuate(r.Context(), key, req.Value); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	logger.LogInfo("🎛️ Control %s set to %q via HTTP", key, req.Value)
	s.changed(key)

	ctl, _ := s.deps.Controls.Get(key)
	writeJSON(w, s.controlResponse(ctl, s.deps.State.Snapshot()), http.StatusOK)
}

type setIntervalRequest struct {
	Seconds float64 `json:"seconds"`
}

func (s *Server) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	var req setIntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Seconds <= 0 {
		writeError(w, "seconds must be positive", http.StatusBadRequest)
		return
	}
	applied := s.deps.Interval.SetPollInterval(time.Duration(req.Seconds * float64(time.Second)))
	s.changed("poll_interval")
	writeJSON(w, map[string]any{"poll_interval": applied.Seconds()}, http.StatusOK)
}

func (s *Server) changed(key string) {
	if s.deps.OnChange != nil {
		s.deps.OnChange(key)
	}
}

// statusFor maps actuation errors onto HTTP status codes
func statusFor(err error) int {
	var validation *bridgeerrors.ValidationError
	var command *bridgeerrors.CommandError
	switch {
	case errors.Is(err, controls.ErrUnknownControl):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &command):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.LogError("Failed to encode JSON response: %v", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}
