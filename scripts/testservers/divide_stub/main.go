// Command divide_stub serves a stand-in for the name division API so the load
// test can be exercised without the real container.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"
)

type divideRequest struct {
	Names []string `json:"names"`
	Mode  string   `json:"mode,omitempty"`
}

type dividedName struct {
	Family    string  `json:"family"`
	Given     string  `json:"given"`
	Separator string  `json:"separator"`
	Score     float64 `json:"score"`
	Algorithm string  `json:"algorithm"`
}

type stub struct {
	failRate float64
	dropRate float64
	latency  time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func main() {
	port := flag.Int("port", 8000, "Listening port")
	failRate := flag.Float64("fail-rate", 0, "Fraction of /divide calls answered with HTTP 500")
	dropRate := flag.Float64("drop-rate", 0, "Fraction of /divide calls answered with one name missing")
	latency := flag.Duration("latency", 0, "Extra latency added to every /divide call")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	s := &stub{
		failRate: *failRate,
		dropRate: *dropRate,
		latency:  *latency,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.HandleFunc("/divide", s.handleDivide)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("divide stub listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func (s *stub) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

func (s *stub) handleDivide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"detail": "method not allowed"})
		return
	}
	var req divideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}
	if req.Mode != "" && req.Mode != "basic" && req.Mode != "gbdt" {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "unknown mode " + req.Mode})
		return
	}

	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if s.failRate > 0 && s.roll() < s.failRate {
		respondJSON(w, http.StatusInternalServerError, map[string]any{"detail": "injected failure"})
		return
	}

	algorithm := "kanji_feature"
	if req.Mode == "gbdt" {
		algorithm = "gbdt"
	}
	divided := make([]dividedName, 0, len(req.Names))
	for _, name := range req.Names {
		divided = append(divided, split(name, algorithm))
	}
	if len(divided) > 0 && s.dropRate > 0 && s.roll() < s.dropRate {
		divided = divided[:len(divided)-1]
	}
	respondJSON(w, http.StatusOK, map[string]any{"divided_names": divided})
}

// split treats the first two characters as the family name.
func split(name, algorithm string) dividedName {
	cut := 0
	for i := 0; i < 2 && cut < len(name); i++ {
		_, size := utf8.DecodeRuneInString(name[cut:])
		cut += size
	}
	return dividedName{
		Family:    name[:cut],
		Given:     name[cut:],
		Separator: " ",
		Score:     0.5,
		Algorithm: algorithm,
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
