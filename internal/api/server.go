package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wrenfold/haptic-core/internal/device"
	"github.com/wrenfold/haptic-core/internal/infrastructure/config"
	"github.com/wrenfold/haptic-core/internal/infrastructure/logging"
	"github.com/wrenfold/haptic-core/internal/message"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// HealthCheck probes one dependency for the /healthz endpoint.
type HealthCheck func(ctx context.Context) error

// Server is the HTTP surface: the health endpoint, the REST device
// listing, and the websocket listener that hosts one Session per client.
type Server struct {
	cfg     *config.Config
	manager *device.Manager
	logger  *logging.Logger
	codec   message.Codec

	httpSrv *http.Server

	healthMu sync.RWMutex
	health   map[string]HealthCheck

	baseCtx    context.Context
	cancelBase context.CancelFunc
	sessions   sync.WaitGroup
}

// New creates the API server.
func New(cfg *config.Config, manager *device.Manager, logger *logging.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		logger:  logger.With("component", "api"),
		codec:   message.JSONCodec{},
		health:  make(map[string]HealthCheck),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		IdleTimeout:  cfg.GetIdleTimeout(),
	}
	return s
}

// AddHealthCheck registers a dependency probe for /healthz.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.health[name] = check
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/v1/devices", s.handleDevices)
		r.Get("/v1/devices/known", s.handleKnownDevices)
		r.Put("/v1/devices/{index}/name", s.handleRenameDevice)
		r.Get(s.cfg.WebSocket.Path, s.handleWebSocket)
	})

	return r
}

// Start serves HTTP until Shutdown or a listener error. It blocks.
func (s *Server) Start() error {
	s.logger.Info("API server starting",
		"addr", s.httpSrv.Addr,
		"tls", s.cfg.API.TLS.Enabled,
	)

	var err error
	if s.cfg.API.TLS.Enabled {
		err = s.httpSrv.ListenAndServeTLS(s.cfg.API.TLS.CertFile, s.cfg.API.TLS.KeyFile)
	} else {
		err = s.httpSrv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, closes active sessions, and
// waits for them to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := s.httpSrv.Shutdown(shutdownCtx)

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("sessions did not drain before shutdown deadline")
	}

	return err
}

// handleHealth reports the server plus every registered dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s.healthMu.RLock()
	checks := make(map[string]HealthCheck, len(s.health))
	for name, check := range s.health {
		checks[name] = check
	}
	s.healthMu.RUnlock()

	status := "ok"
	results := make(map[string]string, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			status = "degraded"
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": results,
	})
}

// deviceView is the REST representation of a registered device.
type deviceView struct {
	Index     uint32                 `json:"index"`
	Name      string                 `json:"name"`
	Protocol  string                 `json:"protocol"`
	Connected bool                   `json:"connected"`
	Actuators []message.ActuatorInfo `json:"actuators,omitempty"`
	Sensors   []message.SensorInfo   `json:"sensors,omitempty"`
}

// handleDevices lists currently-connected devices.
func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.manager.Devices()
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		view := deviceView{
			Index:     d.Index(),
			Name:      d.Name(),
			Protocol:  d.ProtocolName(),
			Connected: d.Connected(),
		}
		caps := d.Capabilities()
		for _, a := range caps.Actuators {
			view.Actuators = append(view.Actuators, message.ActuatorInfo{
				Index: a.Index, Kind: string(a.Kind), Min: a.Min, Max: a.Max,
			})
		}
		for _, sn := range caps.Sensors {
			view.Sensors = append(view.Sensors, message.SensorInfo{
				Index: sn.Index, Kind: string(sn.Kind), Min: sn.Min, Max: sn.Max,
			})
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views})
}

// knownDeviceView is the REST representation of a remembered device,
// connected or not.
type knownDeviceView struct {
	Transport   string    `json:"transport"`
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	Protocol    string    `json:"protocol"`
	DisplayName string    `json:"display_name,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// handleKnownDevices lists every device the store has ever seen.
func (s *Server) handleKnownDevices(w http.ResponseWriter, r *http.Request) {
	known, err := s.manager.KnownDevices(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	views := make([]knownDeviceView, 0, len(known))
	for _, k := range known {
		views = append(views, knownDeviceView{
			Transport:   k.Identity.Transport,
			Address:     k.Identity.Address,
			Name:        k.Identity.Name,
			Protocol:    k.Protocol,
			DisplayName: k.DisplayName,
			FirstSeen:   k.FirstSeen,
			LastSeen:    k.LastSeen,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views})
}

// renameRequest is the PUT /v1/devices/{index}/name body.
type renameRequest struct {
	Name string `json:"name"`
}

// handleRenameDevice assigns a display name to a registered device.
func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid device index"})
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	if err := s.manager.Rename(r.Context(), uint32(index), req.Name); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, device.ErrUnknownDevice) {
			code = http.StatusNotFound
		}
		writeJSON(w, code, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
