package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/andig/ngenic/entity"
	"github.com/andig/ngenic/integration"
	"github.com/evcc-io/evcc/util"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Registry gives access to the entities and services of all entries
type Registry interface {
	Entities() []entity.Entity
	Entity(uid string) (entity.Entity, bool)
	SetActiveControl(ctx context.Context, roomUuid string, active bool) error
}

// Server is the HTTP surface of the bridge
type Server struct {
	log      *util.Logger
	registry Registry
	metrics  *Metrics
	validate *validator.Validate
}

func New(registry Registry, metrics *Metrics) *Server {
	return &Server{
		log:      util.NewLogger("http"),
		registry: registry,
		metrics:  metrics,
		validate: validator.New(),
	}
}

// Entity is the json view of an entity
type Entity struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Platform   string         `json:"platform"`
	Device     string         `json:"device"`
	Available  bool           `json:"available"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

type setActiveControlRequest struct {
	RoomUuid string `json:"room_uuid" validate:"required,uuid"`
	Active   *bool  `json:"active" validate:"required"`
}

type setTemperatureRequest struct {
	Temperature *float64 `json:"temperature" validate:"required,gte=5,lte=30"`
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/entities", s.handleEntities)
	r.Get("/entities/{id}", s.handleEntity)
	r.Post("/entities/{id}/temperature", s.handleTemperature)
	r.Post("/services/set_active_control", s.handleSetActiveControl)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return r
}

// Run serves on addr until ctx is done
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.INFO.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func view(e entity.Entity) Entity {
	return Entity{
		ID:         e.UniqueID(),
		Name:       e.Name(),
		Platform:   string(e.Platform()),
		Device:     e.Device().Name,
		Available:  e.Available(),
		State:      e.State(),
		Attributes: e.Attributes(),
	}
}

func (s *Server) handleEntities(w http.ResponseWriter, _ *http.Request) {
	entities := s.registry.Entities()

	res := make([]Entity, 0, len(entities))
	for _, e := range entities {
		res = append(res, view(e))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	e, ok := s.registry.Entity(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("entity not found"))
		return
	}

	writeJSON(w, http.StatusOK, view(e))
}

func (s *Server) handleTemperature(w http.ResponseWriter, r *http.Request) {
	e, ok := s.registry.Entity(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("entity not found"))
		return
	}

	c, ok := e.(*entity.Climate)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("not a climate entity"))
		return
	}

	var req setTemperatureRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := c.SetTemperature(r.Context(), *req.Temperature); err != nil {
		s.log.ERROR.Printf("set target of %s: %v", c.UniqueID(), err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, view(c))
}

func (s *Server) handleSetActiveControl(w http.ResponseWriter, r *http.Request) {
	var req setActiveControlRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.registry.SetActiveControl(r.Context(), req.RoomUuid, *req.Active); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, integration.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decode(r *http.Request, req any) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return err
	}
	return s.validate.Struct(req)
}
