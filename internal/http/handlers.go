package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/identity"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

type IntentionQueue interface {
	Put(in models.Intention)
	Len() int
}

type PositionReporter interface {
	ReportPosition(ctx context.Context, driverID string, loc models.Coord) error
}

type LocationPublisher interface {
	PublishLocation(ctx context.Context, r models.LocationReport) error
}

type OrderReader interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
}

type PositionReader interface {
	GetPosition(ctx context.Context, driverID string) (*models.DriverPosition, error)
}

// Options wires the server. Publisher is optional: without it location
// reports go straight to the Tracker.
type Options struct {
	Queue     IntentionQueue
	Tracker   PositionReporter
	Publisher LocationPublisher
	Orders    OrderReader
	Positions PositionReader
	WSReg     *dispatch.WSRegistry
	Clock     clockwork.Clock
	Ready     func(ctx context.Context) error
}

type Server struct {
	opts   Options
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(opts Options, logger *slog.Logger) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.WSReg == nil {
		opts.WSReg = dispatch.NewWSRegistry()
	}
	s := &Server{opts: opts, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/intentions", s.handleIntention).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}", s.handleGetOrder).Methods("GET")
	s.mux.HandleFunc("/api/v1/drivers/{id}/position", s.handleGetPosition).Methods("GET")
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type intentionRequest struct {
	CustomerID string       `json:"customer_id"`
	Start      models.Coord `json:"start"`
	Dest       models.Coord `json:"dest"`
	MID        string       `json:"mid"`
}

func (s *Server) handleIntention(w http.ResponseWriter, r *http.Request) {
	var req intentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.CustomerID == "" {
		http.Error(w, "customer_id is required", http.StatusBadRequest)
		return
	}
	if err := validCoord(req.Start); err != nil {
		http.Error(w, "start: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validCoord(req.Dest); err != nil {
		http.Error(w, "dest: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.MID == "" {
		req.MID = newID()
	}
	in := models.Intention{
		CustomerID: req.CustomerID,
		Start:      req.Start,
		Dest:       req.Dest,
		MID:        req.MID,
		ReadyAt:    s.opts.Clock.Now(),
	}
	s.opts.Queue.Put(in)
	observability.IntentionsQueued.Inc()
	observability.QueueDepth.Set(float64(s.opts.Queue.Len()))
	s.logger.Info("intention queued", "mid", in.MID, "customer_id", in.CustomerID)
	writeJSON(w, http.StatusAccepted, map[string]any{"mid": in.MID})
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var rep models.LocationReport
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rep.DriverID == "" {
		http.Error(w, "driver_id is required", http.StatusBadRequest)
		return
	}
	if err := validCoord(rep.Loc); err != nil {
		http.Error(w, "loc: "+err.Error(), http.StatusBadRequest)
		return
	}
	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.PublishLocation(r.Context(), rep); err != nil {
			s.logger.Error("publish location failed", "driver_id", rep.DriverID, "error", err)
			http.Error(w, "location not accepted", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := s.opts.Tracker.ReportPosition(r.Context(), rep.DriverID, rep.Loc); err != nil {
		switch {
		case errors.Is(err, identity.ErrNotFound):
			http.Error(w, "unknown driver", http.StatusNotFound)
		case errors.Is(err, identity.ErrUnavailable):
			http.Error(w, "identity service unavailable", http.StatusServiceUnavailable)
		default:
			s.logger.Error("report position failed", "driver_id", rep.DriverID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.opts.Orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("get order failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	p, err := s.opts.Positions.GetPosition(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "position not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("get position failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(r.Context()); err != nil {
			http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

var upgrader = websocket.Upgrader{}

// handleWS keeps the driver's session registered until the socket closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.opts.WSReg.Add(id, conn)
	defer func() {
		s.opts.WSReg.Remove(id, conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func validCoord(c models.Coord) error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("lat %f out of range", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("lon %f out of range", c.Lon)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
