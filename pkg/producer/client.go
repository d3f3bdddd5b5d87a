// Package producer is the client telemetry producers use to join a coordinator.
//
// A producer registers once at start, heartbeats at a fraction of the
// coordinator TTL and deregisters on shutdown:
//
//	c := producer.NewClient("http://localhost:8001")
//	id, err := c.Register(ctx, producer.Registration{Name: "battery", Address: "http://localhost:8004", Capabilities: []string{"battery"}})
//	go c.KeepAlive(ctx, reg, id, 10*time.Second, nil)
//	defer c.Deregister(context.Background(), id)
package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned by Heartbeat when the coordinator no longer knows the ID.
var ErrNotFound = errors.New("participant not registered with coordinator")

// Registration describes the producer to the coordinator.
type Registration struct {
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Capabilities []string `json:"capabilities"`
}

// Client calls the coordinator registration API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the coordinator at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Register joins the coordinator and returns the assigned participant ID.
func (c *Client) Register(ctx context.Context, reg Registration) (string, error) {
	var resp struct {
		ParticipantID string `json:"participant_id"`
	}
	if err := c.post(ctx, "/register", reg, &resp); err != nil {
		return "", fmt.Errorf("failed to register: %w", err)
	}
	if resp.ParticipantID == "" {
		return "", fmt.Errorf("failed to register: empty participant_id in response")
	}
	return resp.ParticipantID, nil
}

// Heartbeat extends the participant's TTL. It returns ErrNotFound when the
// coordinator has expired or never knew the ID.
func (c *Client) Heartbeat(ctx context.Context, id string) error {
	if err := c.post(ctx, "/heartbeat", map[string]string{"participant_id": id}, nil); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to heartbeat: %w", err)
	}
	return nil
}

// Deregister leaves the coordinator. Unknown IDs are not an error.
func (c *Client) Deregister(ctx context.Context, id string) error {
	if err := c.post(ctx, "/deregister", map[string]string{"participant_id": id}, nil); err != nil {
		return fmt.Errorf("failed to deregister: %w", err)
	}
	return nil
}

// KeepAlive heartbeats every interval until ctx is cancelled. When the
// coordinator answers not_found it re-registers and reports the new ID through
// onID, which may be nil. It returns the ID current at exit.
func (c *Client) KeepAlive(ctx context.Context, reg Registration, id string, interval time.Duration, onID func(string)) string {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return id
		case <-ticker.C:
		}

		err := c.Heartbeat(ctx, id)
		if !errors.Is(err, ErrNotFound) {
			// Transient failures are retried on the next tick
			continue
		}

		newID, err := c.Register(ctx, reg)
		if err != nil {
			continue
		}
		id = newID
		if onID != nil {
			onID(id)
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		var eb errorBody
		if json.NewDecoder(resp.Body).Decode(&eb) == nil && eb.Error == "not_found" {
			return ErrNotFound
		}
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if json.NewDecoder(resp.Body).Decode(&eb) == nil && eb.Message != "" {
			return fmt.Errorf("coordinator returned %d: %s", resp.StatusCode, eb.Message)
		}
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
