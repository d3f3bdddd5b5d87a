package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Adidier/agents/internal/registry"
	"github.com/Adidier/agents/pkg/telemetry"
)

// handleRegister validates the address before touching the store.
// POST /register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "name is required")
		return
	}

	addr, err := telemetry.ParseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidAddress, err.Error())
		return
	}

	caps := make([]string, 0, len(req.Capabilities))
	for _, c := range req.Capabilities {
		if c = strings.TrimSpace(c); c != "" {
			caps = append(caps, c)
		}
	}

	id := s.store.Register(name, addr, caps)
	s.log.Info().
		Str("event", "participant_registered").
		Str("participant_id", id).
		Str("name", name).
		Str("address", addr.String()).
		Strs("capabilities", caps).
		Msg("Participant registered")

	writeJSON(w, http.StatusOK, RegisterResponse{ParticipantID: id})
}

// handleDeregister is idempotent: unknown IDs are acknowledged.
// POST /deregister
func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	var req IDRequest
	if err := decodeID(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	if s.store.Deregister(req.ParticipantID) {
		s.log.Info().
			Str("event", "participant_deregistered").
			Str("participant_id", req.ParticipantID).
			Msg("Participant deregistered")
	}

	writeJSON(w, http.StatusOK, AckResponse{Status: "ok"})
}

// handleHeartbeat returns 404 not_found for unknown IDs; the caller re-registers.
// POST /heartbeat
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req IDRequest
	if err := decodeID(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	if err := s.store.Heartbeat(req.ParticipantID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("participant %s is not registered", req.ParticipantID))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, AckResponse{Status: "ok"})
}

// GET /participants
func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	participants := s.store.List()
	views := make([]ParticipantView, 0, len(participants))
	for _, p := range participants {
		views = append(views, NewParticipantView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleHealth returns 200 if Redis is accessible, 503 otherwise.
// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       "healthy",
		Participants: s.store.Len(),
	}
	if s.snapshots != nil {
		response.Cycles = s.snapshots.Cycles()
	}

	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.pinger.Ping(ctx); err != nil {
			response.Status = "degraded"
			response.Redis = "disconnected"
			response.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
		response.Redis = "connected"
	}

	writeJSON(w, http.StatusOK, response)
}

// GET /snapshots/latest
func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap *telemetry.Snapshot
	if s.snapshots != nil {
		snap = s.snapshots.Latest()
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, CodeNoSnapshot, "no aggregation cycle has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func decodeID(w http.ResponseWriter, r *http.Request, req *IDRequest) error {
	if err := decodeBody(w, r, req); err != nil {
		return err
	}
	if strings.TrimSpace(req.ParticipantID) == "" {
		return fmt.Errorf("participant_id is required")
	}
	return nil
}
