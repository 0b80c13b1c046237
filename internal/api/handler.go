// Package api exposes block analysis over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/web3ekko/flashguard/internal/storage"
	"github.com/web3ekko/flashguard/pkg/detector"
	"github.com/web3ekko/flashguard/pkg/events"
)

const (
	msgInvalidBlock   = "Invalid block number provided"
	msgAnalysisFailed = "An error occurred while analyzing the block"
	maxBodyBytes      = 1 << 16
)

// BlockAnalyzer is implemented by service.BlockAnalysisService.
type BlockAnalyzer interface {
	AnalyzeBlock(ctx context.Context, blockNumber uint64) (*events.AnalysisReport, error)
}

// FindingsStore is implemented by storage.DuckDBStorage.
type FindingsStore interface {
	FindingsByBlock(ctx context.Context, blockNumber uint64) (*storage.Findings, error)
}

type Handler struct {
	analyzer BlockAnalyzer
	store    FindingsStore
	gatherer prometheus.Gatherer
	log      logrus.FieldLogger
}

// NewHandler builds the HTTP surface. store and gatherer may be nil.
func NewHandler(analyzer BlockAnalyzer, store FindingsStore, gatherer prometheus.Gatherer, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		analyzer: analyzer,
		store:    store,
		gatherer: gatherer,
		log:      log.WithField("component", "api"),
	}
}

// Router returns the routes mounted under their public paths.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.logRequests)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/api/block/analyze", h.analyzeBlock).Methods(http.MethodPost)
	r.HandleFunc("/api/block/{blockNumber}/findings", h.findings).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

type analyzeRequest struct {
	BlockNumber json.RawMessage `json:"blockNumber"`
}

type analyzeResponse struct {
	BlockNumber                json.RawMessage                  `json:"blockNumber"`
	DetectedSuspiciousActivity bool                             `json:"detectedSuspiciousActivity"`
	SuspiciousTransactions     []detector.SuspiciousTransaction `json:"suspiciousTransactions"`
}

func (h *Handler) analyzeBlock(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBlock)
		return
	}
	blockNumber, err := detector.ParseBlockNumber(req.BlockNumber)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBlock)
		return
	}

	report, err := h.analyzer.AnalyzeBlock(r.Context(), blockNumber)
	if err != nil {
		if errors.Is(err, detector.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, msgInvalidBlock)
			return
		}
		h.log.WithError(err).WithField("block", blockNumber).Error("error analyzing block")
		writeError(w, http.StatusInternalServerError, msgAnalysisFailed)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		BlockNumber:                req.BlockNumber,
		DetectedSuspiciousActivity: report.DetectedSuspiciousActivity,
		SuspiciousTransactions:     report.SuspiciousTransactions,
	})
}

func (h *Handler) findings(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "findings store is not configured")
		return
	}
	blockNumber, err := strconv.ParseUint(mux.Vars(r)["blockNumber"], 10, 64)
	if err != nil || blockNumber == 0 {
		writeError(w, http.StatusBadRequest, msgInvalidBlock)
		return
	}

	f, err := h.store.FindingsByBlock(r.Context(), blockNumber)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "No findings stored for this block")
	case err != nil:
		h.log.WithError(err).WithField("block", blockNumber).Error("error loading findings")
		writeError(w, http.StatusInternalServerError, "An error occurred while loading findings")
	default:
		writeJSON(w, http.StatusOK, f)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": rec.status,
			"took":   time.Since(start),
		}).Debug("request served")
	})
}
