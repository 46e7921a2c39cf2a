// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public (read-only observation).
// Mutating endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/decision"
	"github.com/nicolas-f/gdms-usm/internal/engine"
	"github.com/nicolas-f/gdms-usm/internal/persistence"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

const (
	maxStreamConns = 8
	pingInterval   = 15 * time.Second
	writeWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server serves the simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; enables /api/v1/steps
	Port     int
	AdminKey string // Bearer token for mutating endpoints. Empty = disabled.

	streamConns int32
	srv         *http.Server
}

// Handler builds the request router.
func (s *Server) Handler() http.Handler {
	streamLimiter := NewRateLimiter(30, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/steps", s.handleSteps)
	mux.HandleFunc("/api/v1/parcels", s.handleParcels)
	mux.HandleFunc("/api/v1/parcel/", s.handleParcelDetail)

	// Live step reports over a websocket.
	mux.HandleFunc("/api/v1/stream", RateLimitMiddleware(streamLimiter, s.handleStream))

	// Admin endpoints (mutating methods require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/households", s.adminOnly(s.handleAddHousehold))
	mux.HandleFunc("/api/v1/household/", s.adminOnly(s.handleHousehold))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	s.srv = &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the HTTP server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra allowed origins.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on anything but GET.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no SPRAWLSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":     "sprawlsim",
		"run_id":   s.Sim.RunID.String(),
		"state":    s.Sim.State().String(),
		"step":     s.Sim.StepCount(),
		"year":     s.Sim.Year(),
		"decision": s.Sim.Decider().Name(),
		"stats":    s.Sim.Stats(),
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
	}
	if err := s.Sim.Err(); err != nil {
		status["error"] = err.Error()
	}
	writeJSON(w, status)
}

// handleStats returns the latest step report.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	report, ok := s.Sim.LastReport()
	if !ok {
		http.Error(w, "no step completed yet", http.StatusNotFound)
		return
	}
	writeJSON(w, report)
}

// handleStatsHistory returns the in-memory step reports, oldest first.
func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	reports := s.Sim.RecentReports()
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v < len(reports) {
			reports = reports[len(reports)-v:]
		}
	}
	if reports == nil {
		reports = []engine.StepReport{}
	}
	writeJSON(w, reports)
}

// handleSteps returns committed step records from the database, newest first.
func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 30
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}
	steps, err := s.DB.Steps(limit)
	if err != nil {
		slog.Error("step history query failed", "error", err)
		writeJSON(w, []engine.StepRecord{})
		return
	}
	if steps == nil {
		steps = []engine.StepRecord{}
	}
	writeJSON(w, steps)
}

type parcelSummary struct {
	ID         world.ParcelID  `json:"id"`
	Q          int             `json:"q"`
	R          int             `json:"r"`
	BuildType  world.BuildType `json:"build_type"`
	Density    float64         `json:"density"`
	MaxDensity float64         `json:"max_density"`
	Population int             `json:"population"`
	Full       bool            `json:"full"`
	Amenities  int             `json:"amenities_index"`
	ZoneID     int             `json:"zone_id"`
}

func summarize(p *world.Parcel) parcelSummary {
	return parcelSummary{
		ID:         p.ID,
		Q:          p.Coord.Q,
		R:          p.Coord.R,
		BuildType:  p.BuildType,
		Density:    p.Density(),
		MaxDensity: p.MaxDensity,
		Population: p.Population(),
		Full:       p.IsFull(),
		Amenities:  p.AmenitiesIndex,
		ZoneID:     p.ZoneID,
	}
}

// handleParcels lists parcels, optionally filtered by ?build_type=N or ?full=true|false.
func (s *Server) handleParcels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var wantBT world.BuildType
	if v := q.Get("build_type"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !world.BuildType(n).Valid() {
			http.Error(w, "build_type must be 1-5", http.StatusBadRequest)
			return
		}
		wantBT = world.BuildType(n)
	}
	var wantFull *bool
	if v := q.Get("full"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "full must be a boolean", http.StatusBadRequest)
			return
		}
		wantFull = &b
	}

	out := []parcelSummary{}
	s.Sim.Read(func(pop *agents.Population) {
		if pop == nil {
			return
		}
		for _, p := range pop.Parcels() {
			if wantBT != 0 && p.BuildType != wantBT {
				continue
			}
			if wantFull != nil && p.IsFull() != *wantFull {
				continue
			}
			out = append(out, summarize(p))
		}
	})
	writeJSON(w, out)
}

// handleParcelDetail serves GET /api/v1/parcel/:id.
func (s *Server) handleParcelDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(strings.TrimPrefix(r.URL.Path, "/api/v1/parcel/"), 10, 64)
	if err != nil {
		http.Error(w, "invalid parcel id", http.StatusBadRequest)
		return
	}

	var detail map[string]any
	s.Sim.Read(func(pop *agents.Population) {
		if pop == nil {
			return
		}
		p, ok := pop.Parcel(world.ParcelID(id))
		if !ok {
			return
		}
		neighbors := pop.NeighborsOf(p.ID)
		neighborIDs := make([]world.ParcelID, len(neighbors))
		bts := make([]world.BuildType, len(neighbors))
		for i, n := range neighbors {
			neighborIDs[i] = n.ID
			bts[i] = n.BuildType
		}
		t := s.Sim.Thresholds()
		bound := p.Bounds()

		detail = map[string]any{
			"parcel":                 summarize(p),
			"base_density":           p.BaseDensity,
			"inverse_area":           p.InverseArea,
			"constructibility_index": p.ConstructibilityIndex,
			"zoning":                 p.Zoning,
			"residents":              p.Residents(),
			"average_wealth":         pop.AverageWealth(p),
			"neighbors":              neighborIDs,
			"upgrade_potential":      p.UpgradePotential(t, bts),
			"target_build_type":      p.TargetBuildType(t, bts, s.Sim.NeighborInfluence()),
			"bounds":                 [2][2]float64{{bound.Min.X(), bound.Min.Y()}, {bound.Max.X(), bound.Max.Y()}},
			"footprint":              world.FootprintWKT(p),
		}
	})
	if detail == nil {
		http.Error(w, "parcel not found", http.StatusNotFound)
		return
	}
	writeJSON(w, detail)
}

// handleHousehold serves GET and DELETE /api/v1/household/:id.
func (s *Server) handleHousehold(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(strings.TrimPrefix(r.URL.Path, "/api/v1/household/"), 10, 64)
	if err != nil {
		http.Error(w, "invalid household id", http.StatusBadRequest)
		return
	}
	hid := agents.HouseholdID(id)

	switch r.Method {
	case http.MethodGet:
		s.householdDetail(w, hid)
	case http.MethodDelete:
		if err := s.Sim.RemoveHousehold(hid); err != nil {
			writeSimError(w, err)
			return
		}
		slog.Info("household removed via API", "household", hid)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) householdDetail(w http.ResponseWriter, id agents.HouseholdID) {
	var detail map[string]any
	s.Sim.Read(func(pop *agents.Population) {
		if pop == nil {
			return
		}
		h, ok := pop.Household(id)
		if !ok {
			return
		}
		detail = map[string]any{
			"id":         h.ID,
			"age":        h.Age,
			"max_wealth": h.MaxWealth,
			"wealth":     h.Wealth(),
			"parcel_id":  h.ParcelID,
		}
		home, err := pop.Housing(h)
		if err != nil {
			return
		}
		if ihc, err := h.IdealHousingCoefficient(home); err == nil {
			detail["ideal_housing_coefficient"] = ihc
		}
		if st, ok := s.Sim.Decider().(*decision.Statistical); ok {
			if wmc, err := h.WillMoveCoefficient(home, st.CoreZone); err == nil {
				detail["will_move_coefficient"] = wmc
			}
		}
	})
	if detail == nil {
		http.Error(w, "household not found", http.StatusNotFound)
		return
	}
	if mem, ok := s.Sim.DecisionMemory(id); ok {
		detail["memory"] = mem
		total := 0.0
		for _, v := range mem {
			total += v
		}
		detail["cumulated"] = total
	}
	writeJSON(w, detail)
}

// handleAddHousehold serves POST /api/v1/households.
func (s *Server) handleAddHousehold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Age       int            `json:"age"`
		MaxWealth int            `json:"max_wealth"`
		ParcelID  world.ParcelID `json:"parcel_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Age < 0 || req.MaxWealth < 0 {
		http.Error(w, "age and max_wealth must not be negative", http.StatusBadRequest)
		return
	}

	h, err := s.Sim.SpawnHousehold(req.Age, req.MaxWealth, req.ParcelID)
	if err != nil {
		writeSimError(w, err)
		return
	}
	slog.Info("household added via API", "household", h.ID, "parcel", req.ParcelID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"id": h.ID, "parcel_id": req.ParcelID})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not running", http.StatusServiceUnavailable)
		return
	}
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
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// handleStream upgrades to a websocket and pushes every step report as JSON
// until the client goes away or the run ends.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	current := atomic.AddInt32(&s.streamConns, 1)
	defer atomic.AddInt32(&s.streamConns, -1)
	if current > maxStreamConns {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)
	slog.Info("stream client connected", "sub_id", subID)

	// Reads only serve to notice the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case report, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run ended"))
				return
			}
			if err := conn.WriteJSON(report); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			slog.Info("stream client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSimError maps simulation errors to HTTP status codes.
func writeSimError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agents.ErrUnknownHousehold), errors.Is(err, agents.ErrUnknownParcel):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, agents.ErrDuplicateHousehold), errors.Is(err, world.ErrAlreadyResident):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
