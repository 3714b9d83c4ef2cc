// Package stageclient is the Go client for a stagetime gateway. It joins
// rooms over REST and holds a live websocket session that mirrors the room's
// timing locally: a synced estimate of the server clock, the masked prompt as
// it uncovers, and countdowns that interpolate smoothly between server ticks.
package stageclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quizlive/stagetime/go/internal/models"
	"github.com/quizlive/stagetime/go/internal/stage/events"
)

// HostKeyHeader carries the shared host key on join requests.
const HostKeyHeader = "X-Host-Key"

// Client is the REST side of the gateway API.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// New returns a client for the gateway at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

// SetHeader attaches a header to every request.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetHostKey attaches the shared host key, required to join as host.
func (c *Client) SetHostKey(key string) {
	c.SetHeader(HostKeyHeader, key)
}

// SetTimeout adjusts the HTTP timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// JoinResult is the gateway's answer to a join request.
type JoinResult struct {
	RoomCode     string             `json:"room_code"`
	Participant  models.Participant `json:"participant"`
	Token        string             `json:"token,omitempty"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
	ServerTimeMs int64              `json:"server_time_ms"`
}

// Join registers a participant with the room and returns the identity plus,
// when the gateway runs with auth, the token the websocket dial must carry.
func (c *Client) Join(ctx context.Context, roomCode, name string, role models.Role) (*JoinResult, error) {
	body, err := json.Marshal(map[string]string{"name": name, "role": string(role)})
	if err != nil {
		return nil, fmt.Errorf("marshal join request: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/rooms/%s/join", roomCode), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var result JoinResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode join response: %w", err)
	}
	return &result, nil
}

// State fetches the room's current snapshot without connecting.
func (c *Client) State(ctx context.Context, roomCode string) (*events.RoomSnapshotPayload, error) {
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/rooms/%s/state", roomCode), nil)
	if err != nil {
		return nil, err
	}
	var snapshot events.RoomSnapshotPayload
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode room state: %w", err)
	}
	return &snapshot, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}
	return responseBody, nil
}

// wsURL converts the REST base into the websocket endpoint for a room.
func (c *Client) wsURL(roomCode string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return fmt.Sprintf("%s/rooms/%s/ws", base, roomCode)
}
