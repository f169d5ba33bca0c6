package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockbt/internal/chart"
	"stockbt/internal/engine"
	"stockbt/internal/gather"
	"stockbt/internal/store"
	"stockbt/internal/strategy"
	"stockbt/internal/util"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server serves the backtest HTTP API.
type Server struct {
	bt  *strategy.Backtester
	log *slog.Logger
}

// NewServer creates a Server running backtests through bt.
func NewServer(bt *strategy.Backtester, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{bt: bt, log: log.With("component", "httpapi")}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	mux.HandleFunc("POST /api/backtests", s.handleRun)
	mux.HandleFunc("POST /api/backtests/compare", s.handleCompare)
	mux.HandleFunc("GET /api/backtests", s.handleHistory)
	mux.HandleFunc("GET /api/backtests/{id}", s.handleGetRun)
	mux.HandleFunc("DELETE /api/backtests/{id}", s.handleDeleteRun)
	mux.HandleFunc("GET /api/backtests/{id}/chart", s.handleChart)
	mux.HandleFunc("GET /api/bars/{symbol}", s.handleBars)
	mux.HandleFunc("GET /api/company/{symbol}", s.handleCompany)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, strategy.ErrInvalidRequest),
		errors.Is(err, strategy.ErrInvalidParam),
		errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, engine.ErrInvalidRisk):
		return http.StatusBadRequest
	case errors.Is(err, gather.ErrNoData), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, strategy.ErrInvalidRequest) {
			return err
		}
		return fmt.Errorf("%w: %v", strategy.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "source": s.bt.Source().Name()})
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StrategiesResponse{Strategies: s.bt.Registry().Infos()})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req strategy.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.bt.Run(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	results, err := s.bt.Compare(r.Context(), req.Request, req.Strategies)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CompareResponse{Results: results})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.bt.History(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := HistoryResponse{Runs: make([]RunSummary, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, ToSummary(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.bt.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.bt.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	res, err := s.bt.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	title := fmt.Sprintf("%s (%s) %s", res.CompanyName, res.Request.Symbol, res.Request.Strategy)
	page, err := chart.HTML(title, chart.PriceFigure(res), chart.EquityFigure(res))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	symbol := gather.NormalizeSymbol(r.PathValue("symbol"))
	start, end := util.DefaultRange(s.bt.Defaults().LookbackDays)
	q := r.URL.Query()
	for name, dst := range map[string]*time.Time{"start": &start, "end": &end} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := util.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be YYYY-MM-DD", name))
			return
		}
		*dst = t
	}
	if start.After(end) {
		writeError(w, http.StatusBadRequest, "start is after end")
		return
	}

	bars, err := s.bt.Source().Bars(r.Context(), symbol, start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BarsResponse{
		Symbol: symbol,
		Start:  start.Format(util.DateLayout),
		End:    end.Format(util.DateLayout),
		Bars:   bars,
	})
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	symbol := gather.NormalizeSymbol(r.PathValue("symbol"))
	name, err := s.bt.Source().CompanyName(r.Context(), symbol)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CompanyResponse{Symbol: symbol, Name: name})
}
