// Package httpapi is the thin HTTP/WebSocket surface over the decision
// pipeline: a gorilla/mux router, rs/cors wrapper, JSON envelopes,
// and a gorilla/websocket push hub. It owns no pipeline logic; every
// handler delegates to a Dependencies function supplied by the composition
// root. Prometheus exposition lives on a separate listener owned by the
// composition root, not on this router.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/internal/eventbus"
	"github.com/regimebrain/brain/internal/telemetry"
	"github.com/regimebrain/brain/pkg/types"
)

// Dependencies are the pipeline operations the HTTP layer dispatches to.
// Every field is required; the composition root wires them to the actual
// engines.
type Dependencies struct {
	Decision                func(ctx context.Context, asOf types.Date) (types.BrainOutput, error)
	World                    func(ctx context.Context, asOf types.Date) (types.WorldState, error)
	Forecast                 func(ctx context.Context, asset types.Asset, asOf types.Date) (map[types.Horizon]types.HorizonForecast, error)
	CompareTimeline          func(ctx context.Context, from, to types.Date) ([]types.BrainOutput, error)
	SimRun                   func(ctx context.Context, start, end types.Date) (types.SimulatorReport, error)
	SimReport                func(ctx context.Context, runID string) (types.SimulatorReport, bool, error)
	OptimizerPreview         func(ctx context.Context, asOf types.Date) (types.OptimizerOutput, error)
	CalibrationRun           func(ctx context.Context, asset types.Asset) (types.CalibrationVersion, error)
	CalibrationActive        func(ctx context.Context, asset types.Asset) (types.CalibrationVersion, bool, error)
	CalibrationPromote       func(ctx context.Context, versionID string) error
	PromotionRecommendation  func(ctx context.Context, runID string) (types.PromotionReport, error)
}

// Server is the HTTP/WebSocket API surface.
type Server struct {
	logger  *zap.Logger
	cfg     config.ServerConfig
	deps    Dependencies
	bus     *eventbus.Bus
	metrics *telemetry.Metrics

	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *hub
}

func New(logger *zap.Logger, cfg config.ServerConfig, deps Dependencies, bus *eventbus.Bus, metrics *telemetry.Metrics) *Server {
	s := &Server{
		logger:  logger.Named("httpapi"),
		cfg:     cfg,
		deps:    deps,
		bus:     bus,
		metrics: metrics,
		router:  mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hub: newHub(logger),
	}
	s.routes()
	s.subscribeBus()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	s.router.HandleFunc("/decision", s.handleDecision).Methods(http.MethodGet)
	s.router.HandleFunc("/world", s.handleWorld).Methods(http.MethodGet)
	s.router.HandleFunc("/forecast", s.handleForecast).Methods(http.MethodGet)
	s.router.HandleFunc("/compare/timeline", s.handleCompareTimeline).Methods(http.MethodGet)

	s.router.HandleFunc("/sim/run", s.handleSimRun).Methods(http.MethodPost)
	s.router.HandleFunc("/sim/report", s.handleSimReport).Methods(http.MethodGet)

	s.router.HandleFunc("/optimizer/preview", s.handleOptimizerPreview).Methods(http.MethodGet)

	s.router.HandleFunc("/calibration/run", s.handleCalibrationRun).Methods(http.MethodPost)
	s.router.HandleFunc("/calibration/active", s.handleCalibrationActive).Methods(http.MethodGet)
	s.router.HandleFunc("/calibration/promote", s.handleCalibrationPromote).Methods(http.MethodPost)

	s.router.HandleFunc("/promotion/recommendation", s.handlePromotionRecommendation).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) subscribeBus() {
	push := func(evt eventbus.Event) {
		b, err := json.Marshal(evt)
		if err != nil {
			return
		}
		s.hub.broadcast(b)
	}
	s.bus.Subscribe(eventbus.EventRegimeChange, push)
	s.bus.Subscribe(eventbus.EventGuardEscalation, push)
	s.bus.Subscribe(eventbus.EventPromotion, push)
	s.bus.Subscribe(eventbus.EventDecision, push)
}

// Handler returns the wrapped router, CORS included, for use by an
// http.Server the caller owns.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)
}

// ListenAndServe starts the HTTP server on cfg.Addr.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.cfg.FetchTimeoutMS) * time.Millisecond,
		WriteTimeout: time.Duration(s.cfg.CascadeTimeoutMS) * time.Millisecond,
	}
	s.logger.Info("starting http api", zap.String("addr", s.cfg.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and the websocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// envelope writes {ok:true, ...fields} or {ok:false, error, message}.
func writeOK(w http.ResponseWriter, payload map[string]interface{}) {
	payload["ok"] = true
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErr(w http.ResponseWriter, status int, errKind string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":      false,
		"error":   errKind,
		"message": err.Error(),
	})
}

func parseAsOf(r *http.Request) (types.Date, error) {
	s := r.URL.Query().Get("asOf")
	if s == "" {
		return types.Date{}, fmt.Errorf("missing required query param asOf")
	}
	return types.ParseDate(s)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]interface{}{"status": "healthy"})
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", err)
		return
	}
	out, err := s.deps.Decision(r.Context(), asOf)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "DecisionFailed", err)
		return
	}
	writeOK(w, map[string]interface{}{"decision": out})
}

func (s *Server) handleWorld(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", err)
		return
	}
	ws, err := s.deps.World(r.Context(), asOf)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "WorldFailed", err)
		return
	}
	writeOK(w, map[string]interface{}{"world": ws})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", err)
		return
	}
	asset := types.Asset(r.URL.Query().Get("asset"))
	if asset == "" {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", fmt.Errorf("missing required query param asset"))
		return
	}
	fc, err := s.deps.Forecast(r.Context(), asset, asOf)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "ForecastFailed", err)
		return
	}
	writeOK(w, map[string]interface{}{"forecast": fc})
}

func (s *Server) handleCompareTimeline(w http.ResponseWriter, r *http.Request) {
	from, err := types.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", err)
		return
	}
	to, err := types.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", err)
		return
	}
	timeline, err := s.deps.CompareTimeline(r.Context(), from, to)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "CompareFailed", err)
		return
	}
	writeOK(w, map[string]interface{}{"timeline": timeline})
}

func (s *Server) handleSimRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", err)
		return
	}
	start, err := types.ParseDate(body.Start)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", err)
		return
	}
	end, err := types.ParseDate(body.End)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", err)
		return
	}
	report, err := s.deps.SimRun(r.Context(), start, end)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "SimRunFailed", err)
		return
	}
	s.bus.Publish(eventbus.EventDecision, report)
	writeOK(w, map[string]interface{}{"report": report})
}

func (s *Server) handleSimReport(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("id")
	if runID == "" {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", fmt.Errorf("missing required query param id"))
		return
	}
	report, ok, err := s.deps.SimReport(r.Context(), runID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "SimReportFailed", err)
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "RunNotFound", fmt.Errorf("no simulation run with id %q", runID))
		return
	}
	writeOK(w, map[string]interface{}{"report": report})
}

func (s *Server) handleOptimizerPreview(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", err)
		return
	}
	out, err := s.deps.OptimizerPreview(r.Context(), asOf)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "OptimizerPreviewFailed", err)
		return
	}
	writeOK(w, map[string]interface{}{"optimizer": out})
}

func (s *Server) handleCalibrationRun(w http.ResponseWriter, r *http.Request) {
	asset := types.Asset(r.URL.Query().Get("asset"))
	if asset == "" {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", fmt.Errorf("missing required query param asset"))
		return
	}
	v, err := s.deps.CalibrationRun(r.Context(), asset)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "CalibrationRunFailed", err)
		return
	}
	writeOK(w, map[string]interface{}{"calibration": v})
}

func (s *Server) handleCalibrationActive(w http.ResponseWriter, r *http.Request) {
	asset := types.Asset(r.URL.Query().Get("asset"))
	if asset == "" {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", fmt.Errorf("missing required query param asset"))
		return
	}
	v, ok, err := s.deps.CalibrationActive(r.Context(), asset)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "CalibrationActiveFailed", err)
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "RunNotFound", fmt.Errorf("no active calibration for asset %q", asset))
		return
	}
	writeOK(w, map[string]interface{}{"calibration": v})
}

func (s *Server) handleCalibrationPromote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VersionID string `json:"versionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", err)
		return
	}
	if err := s.deps.CalibrationPromote(r.Context(), body.VersionID); err != nil {
		writeErr(w, http.StatusInternalServerError, "PromotionRejected", err)
		return
	}
	s.bus.Publish(eventbus.EventPromotion, map[string]string{"versionId": body.VersionID})
	writeOK(w, map[string]interface{}{"promoted": body.VersionID})
}

func (s *Server) handlePromotionRecommendation(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("runId")
	if runID == "" {
		writeErr(w, http.StatusBadRequest, "ValidationFailure", fmt.Errorf("missing required query param runId"))
		return
	}
	report, err := s.deps.PromotionRecommendation(r.Context(), runID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "PromotionRecommendationFailed", err)
		return
	}
	writeOK(w, map[string]interface{}{"promotion": report})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.hub.add(uuid.New().String(), conn)
}
