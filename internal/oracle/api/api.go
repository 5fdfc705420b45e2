// Package api serves the oracle's read-only status surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/address"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/assessment"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/chain"
	"github.com/chenzhangda16/web3-fraud-oracle/pkg/obs"
)

type AssessmentReader interface {
	Read(ctx context.Context, checksum string) (assessment.FraudAssessment, error)
}

type CycleSource interface {
	LastSummary() (oracle.Summary, bool)
}

// History is the journal view used after a restart, before the first cycle.
type History interface {
	LastCycle() (raw []byte, found bool, err error)
	LastResult(lower string) (raw []byte, found bool, err error)
}

type Handler struct {
	reader  AssessmentReader
	cycles  CycleSource
	history History // optional
}

func NewHandler(reader AssessmentReader, cycles CycleSource, history History) *Handler {
	return &Handler{reader: reader, cycles: cycles, history: history}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.handleHealth)
	r.Get("/cycles/last", h.handleLastCycle)
	r.Get("/assessments/{address}", h.handleAssessment)
	r.Get("/results/{address}", h.handleLastResult)
	return r
}

type assessmentResponse struct {
	Address    string                     `json:"address"`
	Checksum   string                     `json:"checksum"`
	Assessment assessment.FraudAssessment `json:"assessment"`
	RiskLevel  assessment.RiskLevel       `json:"risk_level"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] write response: err=%v", err)
	}
}

func writeRaw(w http.ResponseWriter, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "fraud oracle is running",
		"boot_id": obs.BootID(),
	})
}

func (h *Handler) handleLastCycle(w http.ResponseWriter, r *http.Request) {
	if h.cycles != nil {
		if s, ok := h.cycles.LastSummary(); ok {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	if h.history != nil {
		raw, found, err := h.history.LastCycle()
		if err != nil {
			log.Printf("[api] journal last cycle: err=%v", err)
		} else if found {
			writeRaw(w, raw)
			return
		}
	}
	writeError(w, http.StatusNotFound, "no cycle completed yet")
}

func (h *Handler) handleAssessment(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	a, err := address.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "contract not configured")
		return
	}
	got, err := h.reader.Read(r.Context(), a.Hex())
	switch {
	case errors.Is(err, chain.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "contract not configured")
		return
	case err != nil:
		log.Printf("[api] read assessment: addr=%s err=%v", a.Hex(), err)
		writeError(w, http.StatusBadGateway, "chain read failed")
		return
	}
	writeJSON(w, http.StatusOK, assessmentResponse{
		Address:    address.Lower(a),
		Checksum:   a.Hex(),
		Assessment: got,
		RiskLevel:  assessment.Level(got.OverallRisk),
	})
}

func (h *Handler) handleLastResult(w http.ResponseWriter, r *http.Request) {
	lower, err := address.Normalize(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}
	raw, found, err := h.history.LastResult(lower)
	switch {
	case err != nil:
		log.Printf("[api] journal last result: addr=%s err=%v", lower, err)
		writeError(w, http.StatusInternalServerError, "journal read failed")
	case !found:
		writeError(w, http.StatusNotFound, "no result for address")
	default:
		writeRaw(w, raw)
	}
}
