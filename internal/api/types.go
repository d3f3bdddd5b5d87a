package api

import (
	"time"

	"github.com/Adidier/agents/pkg/telemetry"
)

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Name         string   `json:"name"`
	Address      string   `json:"address"` // e.g. "http://localhost:8002"
	Capabilities []string `json:"capabilities"`
}

// RegisterResponse is returned by POST /register.
type RegisterResponse struct {
	ParticipantID string `json:"participant_id"`
}

// IDRequest is the body of POST /deregister and POST /heartbeat.
type IDRequest struct {
	ParticipantID string `json:"participant_id"`
}

// AckResponse acknowledges deregister and heartbeat.
type AckResponse struct {
	Status string `json:"status"`
}

// ParticipantView is one entry of GET /participants.
type ParticipantView struct {
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	Capabilities  []string  `json:"capabilities"`
	RegisteredAt  time.Time `json:"registered_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// NewParticipantView renders a participant for the list boundary.
func NewParticipantView(p *telemetry.Participant) ParticipantView {
	caps := p.Capabilities
	if caps == nil {
		caps = []string{}
	}
	return ParticipantView{
		ParticipantID: p.ID,
		Name:          p.Name,
		Address:       p.Address.String(),
		Capabilities:  caps,
		RegisteredAt:  p.RegisteredAt,
		LastHeartbeat: p.LastHeartbeat,
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"` // Machine-readable code such as "not_found"
	Message string `json:"message"`
}

// Error codes.
const (
	CodeBadRequest       = "bad_request"
	CodeInvalidAddress   = "invalid_address"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeNoSnapshot       = "no_snapshot"
)

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status       string `json:"status"`
	Redis        string `json:"redis,omitempty"`
	Participants int    `json:"participants"`
	Cycles       uint64 `json:"cycles"`
	Error        string `json:"error,omitempty"`
}
