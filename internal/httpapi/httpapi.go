// Package httpapi is a thin external-collaborator-facing HTTP façade
// over the routing engine, exposing the query and range_query
// operations spec.md section 6 explicitly scopes out of the core
// engine ("interface only, no protocol mandated"). Grounded on
// KhalidEchchahid-transit-app's chi+cors router setup
// (backend/main.go, internal/handler/transport_handler.go) for the
// REST surface and drobiAlex-wabus-backend's websocket hub/handler for
// the streaming endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/antigravity/transitraptor/internal/model"
	"github.com/antigravity/transitraptor/internal/raptor"
	"github.com/antigravity/transitraptor/internal/rangequery"
	"github.com/antigravity/transitraptor/internal/rangequery/cache"
	"github.com/antigravity/transitraptor/internal/timetable"
)

// Server wires a live timetable.Holder into the query/range_query
// HTTP handlers. It rebuilds its raptor.Engine/rangequery.Driver pair
// lazily whenever the Holder's Store has been swapped, since
// raptor.Engine indexes one fixed Store snapshot at construction time
// (internal/raptor's stopIndex) and cannot follow a swap on its own.
type Server struct {
	holder    *timetable.Holder
	raptorCfg raptor.Config
	rangeCfg  rangequery.Config
	cache     *cache.Cache
	logger    *slog.Logger

	mu           sync.Mutex
	cachedStore  *timetable.Store
	cachedEngine *raptor.Engine
	cachedDriver *rangequery.Driver
}

func NewServer(holder *timetable.Holder, raptorCfg raptor.Config, rangeCfg rangequery.Config, resultCache *cache.Cache, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{holder: holder, raptorCfg: raptorCfg, rangeCfg: rangeCfg, cache: resultCache, logger: logger}
}

// current returns the engine/driver pair for whichever Store is
// currently active, rebuilding it if the Holder has swapped since the
// last call.
func (s *Server) current() (*raptor.Engine, *rangequery.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store := s.holder.Load()
	if store != s.cachedStore {
		engine := raptor.NewEngine(store, s.raptorCfg)
		s.cachedStore = store
		s.cachedEngine = engine
		s.cachedDriver = rangequery.NewDriver(store, engine, s.rangeCfg, s.logger)
	}
	return s.cachedEngine, s.cachedDriver
}

// Handler builds the complete chi router: middleware, CORS, and every
// route this façade exposes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requestID)

	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler)

	r.Get("/health", s.handleHealth)
	r.Get("/query", s.handleQuery)
	r.Get("/range_query", s.handleRangeQuery)
	r.Get("/ws/range_query", s.handleRangeQueryWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	store := s.holder.Load()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "stops": store.NumStops()})
}

// handleQuery serves a single earliest-arrival query: GET
// /query?source=...&target=...&depart=<seconds-since-midnight>
// [&shapes=true]. shapes opts into attaching each transit leg's
// on-street polyline, which costs an extra shape-polyline scan per
// leg so it is off by default.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source := q.Get("source")
	target := q.Get("target")
	if source == "" || target == "" {
		writeError(w, http.StatusBadRequest, "source and target are required")
		return
	}

	depart, err := parseSeconds(q.Get("depart"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "depart must be an integer number of seconds")
		return
	}

	var opts []raptor.QueryOption
	if includeShapes, _ := strconv.ParseBool(q.Get("shapes")); includeShapes {
		opts = append(opts, raptor.WithShapes())
	}

	engine, _ := s.current()
	journeys, err := engine.QueryContext(r.Context(), source, target, depart, opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"journeys": journeys})
}

// handleRangeQuery serves GET
// /range_query?source=...&target=...&start=...&window=....
func (s *Server) handleRangeQuery(w http.ResponseWriter, r *http.Request) {
	source, target, start, window, ok := parseRangeParams(w, r)
	if !ok {
		return
	}

	journeys, err := s.rangeQuery(r.Context(), source, target, start, window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"journeys": journeys})
}

// rangeQuery answers from the result cache when present, otherwise
// runs the driver and populates the cache for next time.
func (s *Server) rangeQuery(ctx context.Context, source, target string, start, window model.Seconds) ([]model.Journey, error) {
	var cacheKey string
	if s.cache != nil {
		cacheKey = cache.Key(source, target, start, window)
		if cached, ok := s.cache.Get(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	_, driver := s.current()
	journeys, err := driver.RangeQuery(ctx, source, target, start, window)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, cacheKey, journeys)
	}
	return journeys, nil
}

func parseRangeParams(w http.ResponseWriter, r *http.Request) (source, target string, start, window model.Seconds, ok bool) {
	q := r.URL.Query()
	source = q.Get("source")
	target = q.Get("target")
	if source == "" || target == "" {
		writeError(w, http.StatusBadRequest, "source and target are required")
		return "", "", 0, 0, false
	}

	var err error
	start, err = parseSeconds(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be an integer number of seconds")
		return "", "", 0, 0, false
	}
	window, err = parseSeconds(q.Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "window must be an integer number of seconds")
		return "", "", 0, 0, false
	}
	return source, target, start, window, true
}

func parseSeconds(raw string) (model.Seconds, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return model.Seconds(v), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
