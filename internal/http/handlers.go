package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/dispatch-console/internal/dispatch"
	"github.com/example/dispatch-console/internal/geo"
	"github.com/example/dispatch-console/internal/matcher"
	"github.com/example/dispatch-console/internal/models"
	"github.com/example/dispatch-console/internal/observability"
)

// LocationPublisher is what the driver-beacon endpoint needs from the
// ingest pipeline.
type LocationPublisher interface {
	PublishLocation(d models.Driver) error
}

type Server struct {
	Board         *dispatch.Board
	Geo           geo.Index
	Kafka         LocationPublisher // optional
	WSReg         *dispatch.WSRegistry
	AssignTimeout time.Duration

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(board *dispatch.Board, index geo.Index, wsreg *dispatch.WSRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Board:         board,
		Geo:           index,
		WSReg:         wsreg,
		AssignTimeout: 3 * time.Second,
		logger:        logger,
		mux:           mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1/dispatch").Subrouter()
	api.HandleFunc("/rides", s.handleListRides).Methods("GET")
	api.HandleFunc("/drivers", s.handleListDrivers).Methods("GET")
	api.HandleFunc("/drivers/nearby", s.handleNearbyDrivers).Methods("GET")
	api.HandleFunc("/recommendations/{ride_id}", s.handleRecommend).Methods("GET")
	api.HandleFunc("/assignments", s.handleAssign).Methods("POST")
	api.HandleFunc("/assignments", s.handleListAssignments).Methods("GET")
	api.HandleFunc("/assignments/{id}/accept", s.transitionHandler(s.Board.Accept)).Methods("POST")
	api.HandleFunc("/assignments/{id}/reject", s.transitionHandler(s.Board.Reject)).Methods("POST")
	api.HandleFunc("/assignments/{id}/complete", s.transitionHandler(s.Board.Complete)).Methods("POST")
	api.HandleFunc("/assignments/{id}/cancel", s.transitionHandler(s.Board.Cancel)).Methods("POST")
	api.HandleFunc("/selection", s.handleSelect).Methods("POST")
	api.HandleFunc("/selection", s.handleGetSelection).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleListRides(w http.ResponseWriter, r *http.Request) {
	rides := matcher.FilterRides(s.Board.ListRides(), r.URL.Query().Get("q"))
	sort.Slice(rides, func(i, j int) bool { return rides[i].RequestedAt.Before(rides[j].RequestedAt) })
	writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	var ride *models.Ride
	if id := r.URL.Query().Get("ride_id"); id != "" {
		got, ok := s.Board.GetRide(id)
		if !ok {
			http.Error(w, "ride not found", http.StatusNotFound)
			return
		}
		ride = &got
	}
	drivers := matcher.FilterDrivers(s.Board.ListDrivers(), r.URL.Query().Get("q"), ride)
	if ride == nil {
		sort.Slice(drivers, func(i, j int) bool { return drivers[i].ID < drivers[j].ID })
	}
	writeJSON(w, http.StatusOK, drivers)
}

// handleNearbyDrivers serves the console's map view straight from the
// position index (redis GEO when configured), not the dispatch pool.
func (s *Server) handleNearbyDrivers(w http.ResponseWriter, r *http.Request) {
	if s.Geo == nil {
		http.Error(w, "position index unavailable", http.StatusServiceUnavailable)
		return
	}
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		http.Error(w, "lat and lng are required", http.StatusBadRequest)
		return
	}
	if !geo.ValidCoord(lat, lng) {
		http.Error(w, dispatch.ErrBadCoordinates.Error(), http.StatusUnprocessableEntity)
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"center":  models.Coord{Lat: lat, Lng: lng},
		"drivers": s.Geo.Nearby(lat, lng, limit),
	})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	ranked, err := s.Board.Recommend(rideID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{"candidates": ranked}
	if len(ranked) > 0 {
		resp["suggested"] = ranked[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RideID   string `json:"ride_id"`
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	actor := r.Header.Get("X-Dispatcher")
	ctx, cancel := context.WithTimeout(r.Context(), s.assignTimeout())
	defer cancel()
	a, err := s.Board.Assign(ctx, req.RideID, req.DriverID, actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) transitionHandler(op func(context.Context, string) (models.Assignment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.assignTimeout())
		defer cancel()
		a, err := op(ctx, mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	items := s.Board.ListAssignments()
	// newest first for the console
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RideID   string `json:"ride_id"`
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.RideID != "" {
		if err := s.Board.SelectRide(req.RideID); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if req.DriverID != "" {
		if err := s.Board.SelectDriver(req.DriverID); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.handleGetSelection(w, r)
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	rideID, driverID := s.Board.Selection()
	writeJSON(w, http.StatusOK, map[string]string{"ride_id": rideID, "driver_id": driverID})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Board.Stats())
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var d models.Driver
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if d.Status == "" {
		d.Status = models.DriverAvailable
	}
	observability.DriverBeacons.Inc()
	if s.Kafka != nil {
		_ = s.Kafka.PublishLocation(d)
	}
	s.Board.UpsertDriver(d)
	if s.Geo != nil {
		s.Geo.Upsert(d)
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
}

func (s *Server) assignTimeout() time.Duration {
	if s.AssignTimeout > 0 {
		return s.AssignTimeout
	}
	return 3 * time.Second
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrRideNotFound),
		errors.Is(err, dispatch.ErrDriverNotFound),
		errors.Is(err, dispatch.ErrAssignmentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, dispatch.ErrDriverBusy),
		errors.Is(err, dispatch.ErrTerminalState),
		errors.Is(err, dispatch.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, dispatch.ErrDriverNotEligible),
		errors.Is(err, dispatch.ErrBadCoordinates):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, context.DeadlineExceeded):
		// retryable from the operator's side
		http.Error(w, "dispatch busy, retry", http.StatusServiceUnavailable)
	default:
		s.logger.Error("dispatch operation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
