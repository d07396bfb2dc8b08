package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event types pushed to subscribers.
const (
	EventFollowupCompleted = "followup_completed"
	EventMonthGenerated    = "month_generated"
)

// Message is a change notification broadcast to every connected client.
type Message struct {
	Type  string         `json:"type"`
	Month string         `json:"month"`
	Ref   string         `json:"ref,omitempty"`
	At    time.Time      `json:"at"`
	Extra map[string]any `json:"extra,omitempty"`
}

// NewMessage stamps a Message with the current time.
func NewMessage(eventType, month, ref string, extra map[string]any) Message {
	return Message{
		Type:  eventType,
		Month: month,
		Ref:   ref,
		At:    time.Now().UTC(),
		Extra: extra,
	}
}

// Hub tracks connected clients and fans out messages to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("client connected", "clients", h.ClientCount())
}

// Unregister removes a client and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		h.logger.Debug("client disconnected", "clients", h.ClientCount())
	}
}

// Broadcast queues msg for every client. Clients whose buffer is full miss it.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("broadcast dropped for slow clients", "type", msg.Type, "dropped", dropped)
	}
}

// FollowupCompleted announces that a person's follow-up was marked done.
// The ref is the person id.
func (h *Hub) FollowupCompleted(month, personID, personName string) {
	h.Broadcast(NewMessage(EventFollowupCompleted, month, personID, map[string]any{
		"person_id":   personID,
		"person_name": personName,
	}))
}

// MonthGenerated announces a freshly generated (or regenerated) month.
func (h *Hub) MonthGenerated(month string, assignments int) {
	h.Broadcast(NewMessage(EventMonthGenerated, month, "", map[string]any{
		"assignments": assignments,
	}))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
