// Package api provides the HTTP API for observing the transport
// network, plus a websocket feed of per-tick network pulses.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/talgya/freightworld/internal/cargo"
	"github.com/talgya/freightworld/internal/engine"
	"github.com/talgya/freightworld/internal/persistence"
)

// Server serves the network state over HTTP.
type Server struct {
	World    *engine.World
	Eng      *engine.Engine
	DB       *persistence.DB
	Hub      *Hub
	Port     int
	Scenario string // scenario name recorded on snapshots
	AdminKey string // bearer token for POST endpoints; empty = POST disabled
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/stations", s.handleStations)
	mux.HandleFunc("/api/v1/station/", s.handleStationDetail)
	mux.HandleFunc("/api/v1/vehicles", s.handleVehicles)

	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(s.Hub, w, r)
	})

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// PublishPulse broadcasts the run statistics to websocket subscribers.
// Called from the engine's tick layer.
func (s *Server) PublishPulse(tick uint64) {
	s.Hub.Publish("network_pulse", map[string]any{
		"tick":           tick,
		"produced":       s.World.Stats.Produced,
		"delivered":      s.World.Stats.Delivered,
		"discarded":      s.World.Stats.Discarded,
		"route_earnings": s.World.Stats.RouteEarnings,
		"feeder_credits": s.World.Stats.FeederCredits,
		"packets":        s.World.Pool.Len(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

// adminOnly wraps a handler to require bearer token auth on POST
// requests. GET requests pass through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no FREIGHTWORLD_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.AdminKey {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"name":           "Freightworld",
		"tick":           s.Eng.Tick,
		"speed":          s.Eng.Speed,
		"running":        s.Eng.Running,
		"stations":       len(s.World.Stations),
		"vehicles":       len(s.World.Vehicles),
		"packets":        s.World.Pool.Len(),
		"produced":       s.World.Stats.Produced,
		"delivered":      s.World.Stats.Delivered,
		"discarded":      s.World.Stats.Discarded,
		"route_earnings": s.World.Stats.RouteEarnings,
		"feeder_credits": s.World.Stats.FeederCredits,
		"deferred":       s.World.Ledger.Outstanding(),
	})
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	type cargoSummary struct {
		Cargo    string `json:"cargo"`
		Waiting  uint   `json:"waiting"`
		Reserved uint   `json:"reserved"`
		Flows    int    `json:"flow_origins"`
	}
	type stationSummary struct {
		ID    cargo.StationID `json:"id"`
		Name  string          `json:"name"`
		X     int32           `json:"x"`
		Y     int32           `json:"y"`
		Cargo []cargoSummary  `json:"cargo"`
	}

	result := make([]stationSummary, 0, len(s.World.Stations))
	for _, st := range s.World.Stations {
		entry := stationSummary{ID: st.ID, Name: st.Name, X: st.Sign.X, Y: st.Sign.Y}
		for c, ge := range st.Goods {
			if ge.Cargo.TotalCount() == 0 && ge.Flows.Len() == 0 {
				continue
			}
			entry.Cargo = append(entry.Cargo, cargoSummary{
				Cargo:    s.World.Classes[c].Name,
				Waiting:  ge.Cargo.StoredCount(),
				Reserved: ge.Cargo.ReservedCount(),
				Flows:    ge.Flows.Len(),
			})
		}
		result = append(result, entry)
	}
	writeJSON(w, result)
}

// handleStationDetail serves GET /api/v1/station/:id with the waiting
// cargo broken down by next hop and the full flow tables.
func (s *Server) handleStationDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 {
		http.Error(w, "missing station id", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(parts[4], 10, 16)
	if err != nil {
		http.Error(w, "invalid station id", http.StatusBadRequest)
		return
	}
	st, ok := s.World.Stations[cargo.StationID(id)]
	if !ok {
		http.Error(w, "station not found", http.StatusNotFound)
		return
	}

	type hopEntry struct {
		NextHop cargo.StationID `json:"next_hop"`
		Units   uint            `json:"units"`
	}
	type shareEntry struct {
		Via        cargo.StationID `json:"via"`
		Amount     uint32          `json:"amount"`
		Restricted bool            `json:"restricted,omitempty"`
	}
	type flowEntry struct {
		Origin cargo.StationID `json:"origin"`
		Shares []shareEntry    `json:"shares"`
	}
	type cargoDetail struct {
		Cargo    string      `json:"cargo"`
		Accepted bool        `json:"accepted"`
		Waiting  uint        `json:"waiting"`
		Reserved uint        `json:"reserved"`
		ByHop    []hopEntry  `json:"by_next_hop"`
		Flows    []flowEntry `json:"flows"`
	}

	details := make([]cargoDetail, 0, len(st.Goods))
	for c, ge := range st.Goods {
		d := cargoDetail{
			Cargo:    s.World.Classes[c].Name,
			Accepted: ge.Accepts(),
			Waiting:  ge.Cargo.StoredCount(),
			Reserved: ge.Cargo.ReservedCount(),
		}
		for _, next := range ge.Cargo.NextHops() {
			d.ByHop = append(d.ByHop, hopEntry{
				NextHop: next,
				Units:   ge.Cargo.AvailableViaCount(next),
			})
		}
		for _, fs := range ge.Flows.Stats() {
			fe := flowEntry{Origin: fs.Origin()}
			for _, sh := range fs.Shares() {
				fe.Shares = append(fe.Shares, shareEntry{
					Via: sh.Via, Amount: sh.Amount, Restricted: sh.Restricted,
				})
			}
			d.Flows = append(d.Flows, fe)
		}
		details = append(details, d)
	}

	writeJSON(w, map[string]any{
		"id":    st.ID,
		"name":  st.Name,
		"x":     st.Sign.X,
		"y":     st.Sign.Y,
		"cargo": details,
	})
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	type vehicleSummary struct {
		ID          engine.VehicleID `json:"id"`
		Name        string           `json:"name"`
		Cargo       string           `json:"cargo"`
		Capacity    uint             `json:"capacity"`
		Load        uint             `json:"load"`
		FeederShare cargo.Money      `json:"feeder_share"`
		Heading     cargo.StationID  `json:"heading"`
	}

	result := make([]vehicleSummary, 0, len(s.World.Vehicles))
	for _, v := range s.World.Vehicles {
		result = append(result, vehicleSummary{
			ID:          v.ID,
			Name:        v.Name,
			Cargo:       s.World.Classes[v.CargoOf].Name,
			Capacity:    v.Capacity,
			Load:        v.Hold.TotalCount(),
			FeederShare: v.Hold.FeederShare(),
			Heading:     v.CurrentOrder().Station,
		})
	}
	writeJSON(w, result)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.Speed = req.Speed
		slog.Info("speed changed", "speed", req.Speed)
	}
	writeJSON(w, map[string]float64{"speed": s.Eng.Speed})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	runID, err := s.DB.SaveSnapshot(s.World, s.Scenario, s.Eng.Tick)
	if err != nil {
		slog.Error("snapshot failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	s.Hub.Publish("snapshot_saved", map[string]any{"run": runID, "tick": s.Eng.Tick})
	writeJSON(w, map[string]any{"run": runID, "tick": s.Eng.Tick})
}
