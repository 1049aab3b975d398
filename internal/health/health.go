// Package health serves the satellite's liveness and readiness probes.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz runs the
// registered checks (capture device open, backend stream up) and answers 503
// until all of them pass, so a supervisor can tell a booting or degraded
// satellite from a working one. Responses are JSON and always name the
// satellite they came from.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker probes one subsystem the satellite cannot serve without.
type Checker struct {
	// Name keys the check in the JSON response (e.g. "audio", "backend").
	Name string

	// Check returns nil while the subsystem is usable. It must respect
	// context cancellation.
	Check func(ctx context.Context) error
}

// report is the JSON body of both probe endpoints.
type report struct {
	Status    string            `json:"status"`
	Satellite string            `json:"satellite"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Handler answers /healthz and /readyz for one satellite. Safe for concurrent
// use; the checker list is fixed at construction.
type Handler struct {
	satelliteID string
	checkers    []Checker
}

// New creates a Handler reporting as satelliteID. Checks run sequentially in
// the order given.
func New(satelliteID string, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{satelliteID: satelliteID, checkers: c}
}

// Healthz always answers 200: a process that reached the HTTP server is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok", Satellite: h.satelliteID})
}

// Readyz answers 200 only when every checker passes. Each check gets a
// [checkTimeout] deadline derived from the request context, so a hung device
// probe cannot wedge the endpoint.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	ready := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			ready = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := report{Status: "ok", Satellite: h.satelliteID, Checks: checks}
	status := http.StatusOK
	if !ready {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds both probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
