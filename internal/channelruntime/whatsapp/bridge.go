package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// The adapter talks to a WhatsApp web bridge over a websocket. The bridge
// pushes JSON events (qr, ready, disconnected, message, vote) and accepts
// send_text / send_poll commands.

// Event is one inbound frame from the bridge.
type Event struct {
	Type    string          `json:"type"`
	QR      string          `json:"qr,omitempty"`
	SelfID  string          `json:"self_id,omitempty"`
	Message *InboundMessage `json:"message,omitempty"`
	Vote    *PollVote       `json:"vote,omitempty"`
}

// Event types pushed by the bridge.
const (
	EventQR           = "qr"
	EventReady        = "ready"
	EventDisconnected = "disconnected"
	EventMessage      = "message"
	EventVote         = "vote"
)

type InboundMessage struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Body   string `json:"body"`
	FromMe bool   `json:"from_me"`
}

type PollVote struct {
	Voter    string   `json:"voter"`
	PollID   string   `json:"poll_id"`
	Selected []string `json:"selected"`
}

type command struct {
	Type     string   `json:"type"`
	To       string   `json:"to"`
	Body     string   `json:"body,omitempty"`
	PollID   string   `json:"poll_id,omitempty"`
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// bridgeConn is what the runtime needs from a bridge connection; tests
// substitute a fake.
type bridgeConn interface {
	ReadEvent() (*Event, error)
	SendText(to, body string) error
	SendPoll(to, question string, options []string) (string, error)
	Close() error
}

type bridge struct {
	conn *websocket.Conn
	// websocket writes must not interleave.
	writeMu sync.Mutex
}

func dialBridge(ctx context.Context, url string) (bridgeConn, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("missing whatsapp.bridge_url")
	}
	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &bridge{conn: conn}, nil
}

func (b *bridge) ReadEvent() (*Event, error) {
	var ev Event
	if err := b.conn.ReadJSON(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (b *bridge) SendText(to, body string) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteJSON(command{Type: "send_text", To: to, Body: body})
}

func (b *bridge) SendPoll(to, question string, options []string) (string, error) {
	pollID := uuid.NewString()
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	err := b.conn.WriteJSON(command{
		Type:     "send_poll",
		To:       to,
		PollID:   pollID,
		Question: question,
		Options:  options,
	})
	if err != nil {
		return "", err
	}
	return pollID, nil
}

func (b *bridge) Close() error {
	return b.conn.Close()
}
