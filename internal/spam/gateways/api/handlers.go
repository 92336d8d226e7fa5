package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/haukened/rr-spam/internal/spam/domain"
	"github.com/haukened/rr-spam/internal/spam/repos/blocklist"
	"github.com/haukened/rr-spam/internal/spam/services/classifier"
)

// CheckRequest is the body of POST /v1/check.
type CheckRequest struct {
	Content string `json:"content"`
	// Depth defaults to the configured depth when omitted.
	Depth *int `json:"depth,omitempty"`
	// Domains replaces the configured block-list for this request when present.
	Domains []string `json:"domains,omitempty"`
}

// CheckResponse is the verdict plus the request id it was produced under.
type CheckResponse struct {
	domain.Verdict
	RequestID string `json:"request_id"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CheckRequest
	if err := dec.Decode(&req); err != nil {
		s.reject()
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit))
			return
		}
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	depth := s.defaultDepth
	if req.Depth != nil {
		depth = *req.Depth
	}
	if depth < 0 || depth > s.maxDepth {
		s.reject()
		respondError(w, http.StatusBadRequest, fmt.Sprintf("depth must be between 0 and %d", s.maxDepth))
		return
	}

	domains := s.domains
	if req.Domains != nil {
		domains = blocklist.NewSet(req.Domains...)
	}
	if domains == nil {
		s.reject()
		respondError(w, http.StatusServiceUnavailable, "no block-list configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.checkTimeout)
	defer cancel()

	start := time.Now()
	v, err := s.checker.Check(ctx, req.Content, domains, depth)
	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveCheck(v, err, elapsed)
	}

	if err != nil {
		status := statusForCheckError(err)
		logger.Warn(map[string]any{"error": err, "status": status, "depth": depth}, "Check failed")
		respondError(w, status, err.Error())
		return
	}

	logger.Info(map[string]any{
		"spam":     v.Spam,
		"domain":   v.Domain,
		"rule":     v.Rule,
		"source":   v.Source,
		"links":    v.Links,
		"fetches":  v.Fetches,
		"depth":    depth,
		"duration": elapsed.String(),
	}, "Check completed")
	respondJSON(w, http.StatusOK, CheckResponse{Verdict: v, RequestID: RequestID(r.Context())})
}

func statusForCheckError(err error) int {
	switch {
	case errors.Is(err, classifier.ErrNegativeDepth):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) reject() {
	if s.metrics != nil {
		s.metrics.ObserveRejected()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
