// Package mockpredict serves the scoring service contract from an in-memory
// table, for local runs of the oracle and for tests.
package mockpredict

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/chenzhangda16/web3-fraud-oracle/pkg/rng"
)

type Entry struct {
	Prediction  int
	Probability *float64
}

type Server struct {
	mu    sync.RWMutex
	table map[string]Entry
	hits  map[string]int

	synth     *rng.Factory // nil: unknown addresses are 404
	fraudRate float64
}

func NewServer() *Server {
	return &Server{
		table: make(map[string]Entry),
		hits:  make(map[string]int),
	}
}

// Set registers a score; the key is lower-cased like the real service does.
func (s *Server) Set(addr string, e Entry) {
	s.mu.Lock()
	s.table[strings.ToLower(addr)] = e
	s.mu.Unlock()
}

// Hits reports how many /predict calls asked for addr.
func (s *Server) Hits(addr string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits[strings.ToLower(addr)]
}

// SetSynthetic makes unknown addresses score from a stream seeded by the
// address, so repeated runs see the same predictions.
func (s *Server) SetSynthetic(f *rng.Factory, fraudRate float64) {
	s.mu.Lock()
	s.synth, s.fraudRate = f, fraudRate
	s.mu.Unlock()
}

func (s *Server) synthetic(key string) Entry {
	r := s.synth.Stream(key)
	fraud := r.Float64() < s.fraudRate
	p := r.Float64() / 2
	e := Entry{}
	if fraud {
		e.Prediction = 1
		p += 0.5
	}
	e.Probability = &p
	return e
}

func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}

// LoadCSV reads rows of "address,prediction,probability"; an empty
// probability means the model has none. A header row is skipped.
func (s *Server) LoadCSV(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line++
		if len(rec) < 2 {
			return fmt.Errorf("mockpredict: line %d: want address,prediction[,probability]", line)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "address") {
			continue
		}
		pred, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return fmt.Errorf("mockpredict: line %d: prediction: %w", line, err)
		}
		e := Entry{Prediction: pred}
		if len(rec) >= 3 && strings.TrimSpace(rec[2]) != "" {
			p, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
			if err != nil {
				return fmt.Errorf("mockpredict: line %d: probability: %w", line, err)
			}
			e.Probability = &p
		}
		s.Set(strings.TrimSpace(rec[0]), e)
	}
}

func (s *Server) LoadCSVFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.LoadCSV(f)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 405, map[string]any{"error": "method not allowed"})
	})
	r.Get("/health", s.handleHealth)
	r.Post("/predict", s.handlePredict)
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{
		"status":  "healthy",
		"message": "Fraud Detection API is running",
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad json: " + err.Error()})
		return
	}
	if req.Address == "" {
		writeJSON(w, 400, map[string]any{"error": "Address is required"})
		return
	}

	key := strings.ToLower(req.Address)
	s.mu.Lock()
	s.hits[key]++
	e, ok := s.table[key]
	if !ok && s.synth != nil {
		e, ok = s.synthetic(key), true
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, 404, map[string]any{
			"error":   "Address not found in dataset",
			"address": req.Address,
		})
		return
	}
	writeJSON(w, 200, map[string]any{
		"address":     req.Address,
		"prediction":  e.Prediction,
		"probability": e.Probability,
		"status":      "success",
	})
}
