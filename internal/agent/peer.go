package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Peer delivers a message to the other side and returns its answer.
type Peer interface {
	Send(ctx context.Context, msg Message) (Response, error)
}

// Local delivers messages to an agent in the same process.
type Local struct {
	Agent *Agent
}

func (l Local) Send(ctx context.Context, msg Message) (Response, error) {
	return l.Agent.Handle(ctx, msg), nil
}

// HTTPPeer posts messages as JSON to an agent endpoint.
type HTTPPeer struct {
	URL    string
	Client *http.Client
}

// NewHTTPPeer creates a peer for the agent endpoint at url.
func NewHTTPPeer(url string) *HTTPPeer {
	return &HTTPPeer{
		URL:    url,
		Client: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (p *HTTPPeer) Send(ctx context.Context, msg Message) (Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to send %s: %w", msg.Action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, bytes.TrimSpace(text))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}
