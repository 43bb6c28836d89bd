package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
	"github.com/joshp123/electrolux-bridge/internal/entity"
	"github.com/joshp123/electrolux-bridge/internal/host"
	"github.com/joshp123/electrolux-bridge/internal/logging"
	"github.com/joshp123/electrolux-bridge/internal/platform"
)

// Appliances is the read side of a hub session.
type Appliances interface {
	Degraded() bool
	Appliances() []electrolux.Appliance
}

// Entities is the host registry as seen by the HTTP API.
type Entities interface {
	Snapshots() []entity.Snapshot
	Entity(id string) (entity.Entity, bool)
	Control(ctx context.Context, id, action string, value any) (bool, error)
}

type Deps struct {
	Appliances  Appliances
	Entities    Entities
	Health      func() (platform.HealthStatus, string)
	Metrics     *prometheus.Registry
	CORSOrigins []string
}

// NewRouter serves health, metrics and the JSON API.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware())
	r.Use(RecoveryMiddleware())

	r.HandleFunc("/health", deps.health).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", MetricsHandler(deps.Metrics)).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	if len(deps.CORSOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		})
		api.Use(c.Handler)
		// preflight requests need a matching route to reach the middleware
		api.Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	api.HandleFunc("/appliances", deps.listAppliances).Methods(http.MethodGet)
	api.HandleFunc("/entities", deps.listEntities).Methods(http.MethodGet)
	api.HandleFunc("/entities/{id}", deps.getEntity).Methods(http.MethodGet)
	api.HandleFunc("/entities/{id}/{action}", deps.controlEntity).Methods(http.MethodPost)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger(nil).WithError(err).Warn("writing response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (d Deps) health(w http.ResponseWriter, _ *http.Request) {
	status, message := platform.HealthError, "health not wired"
	if d.Health != nil {
		status, message = d.Health()
	}
	code := http.StatusOK
	if status == platform.HealthError {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(status), "message": message})
}

type applianceJSON struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Created time.Time `json:"created,omitzero"`
}

func (d Deps) listAppliances(w http.ResponseWriter, _ *http.Request) {
	appliances := d.Appliances.Appliances()
	out := make([]applianceJSON, len(appliances))
	for i, a := range appliances {
		out[i] = applianceJSON{ID: a.ID, Name: a.Name, Type: a.Type, Created: a.Created}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appliances": out, "degraded": d.Appliances.Degraded()})
}

func (d Deps) listEntities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entities": d.Entities.Snapshots()})
}

func (d Deps) getEntity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	e, ok := d.Entities.Entity(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.Wrap(host.ErrUnknownEntity, id))
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

type controlRequest struct {
	Value any `json:"value"`
}

func (d Deps) controlEntity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req controlRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode body"))
			return
		}
	}

	accepted, err := d.Entities.Control(r.Context(), vars["id"], vars["action"], req.Value)
	switch {
	case errors.Is(err, host.ErrUnknownEntity):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, entity.ErrUnsupportedAction), errors.Is(err, entity.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
	}
}

// HTTPServer serves the router.
type HTTPServer struct {
	Server *http.Server
}

func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{Server: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
}

func (s *HTTPServer) ListenAndServe() error {
	err := s.Server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
