// Package sse provides Server-Sent Events broadcasting for intervue.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// WriteTimeout is the timeout for writing to SSE clients.
	// Prevents blocking on stale connections.
	WriteTimeout = 2 * time.Second
	// KeepAliveInterval is how often an idle stream gets a comment line so
	// proxies do not close it.
	KeepAliveInterval = 15 * time.Second
)

// Event types pushed to the views.
const (
	EventConnected = "connected"
	EventRoster    = "roster"
	EventTimer     = "timer"
)

// Event is one message on the stream. Type becomes the SSE event name.
type Event struct {
	Data any    `json:"data,omitempty"`
	Type string `json:"type"`
}

// Client represents a connected SSE client.
type Client struct {
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}
	ID      string
	mu      sync.Mutex // serializes writes to Writer
}

// Broadcaster manages SSE client connections and message broadcasting.
type Broadcaster struct {
	clients   map[string]*Client
	mu        sync.RWMutex
	nextID    int
	keepAlive time.Duration
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients:   make(map[string]*Client),
		keepAlive: KeepAliveInterval,
	}
}

// AddClient adds a new SSE client connection.
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("client-%d", b.nextID)
	client := &Client{
		ID:      id,
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}
	b.clients[id] = client
	clientCount := len(b.clients)
	b.mu.Unlock()

	log.Debug().
		Str("clientId", id).
		Int("totalClients", clientCount).
		Msg("SSE client connected")

	return client, nil
}

// RemoveClient removes a client connection. Safe to call more than once.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.removeClientByID(client.ID)
	closeDone(client)
}

func (b *Broadcaster) removeClientByID(id string) {
	b.mu.Lock()
	client, exists := b.clients[id]
	if exists {
		delete(b.clients, id)
	}
	clientCount := len(b.clients)
	b.mu.Unlock()

	if exists {
		closeDone(client)
		log.Debug().
			Str("clientId", id).
			Int("totalClients", clientCount).
			Msg("SSE client removed")
	}
}

func closeDone(client *Client) {
	if client.Done == nil {
		return
	}
	select {
	case <-client.Done:
		// Already closed
	default:
		close(client.Done)
	}
}

// Publish sends a typed event to all connected clients.
func (b *Broadcaster) Publish(eventType string, data any) {
	b.Broadcast(Event{Type: eventType, Data: data})
}

// Broadcast sends an event to all connected clients.
// Uses non-blocking writes with timeout to prevent stale connections from blocking.
func (b *Broadcaster) Broadcast(ev Event) {
	message, err := format(ev)
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("Failed to marshal SSE data")
		return
	}

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	deadClientsCh := make(chan string, len(clients))
	var wg sync.WaitGroup

	for _, client := range clients {
		select {
		case <-client.Done:
			continue
		default:
			wg.Add(1)
			go func(c *Client) {
				defer wg.Done()
				b.writeToClient(c, message, deadClientsCh)
			}(client)
		}
	}

	wg.Wait()
	close(deadClientsCh)

	for clientID := range deadClientsCh {
		b.removeClientByID(clientID)
	}
}

func format(ev Event) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	if ev.Type == "" {
		return fmt.Sprintf("data: %s\n\n", data), nil
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data), nil
}

// writeToClient writes a message to a single client with timeout.
func (b *Broadcaster) writeToClient(client *Client, message string, deadCh chan<- string) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := client.write(message); err != nil {
			log.Debug().
				Str("clientId", client.ID).
				Err(err).
				Msg("Failed to write to SSE client, marking for removal")
			deadCh <- client.ID
		}
	}()

	select {
	case <-done:
	case <-time.After(WriteTimeout):
		log.Warn().
			Str("clientId", client.ID).
			Dur("timeout", WriteTimeout).
			Msg("SSE write timed out, marking client for removal")
		deadCh <- client.ID
	case <-client.Done:
	}
}

func (c *Client) write(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Writer == nil {
		return nil
	}
	select {
	case <-c.Done:
		return nil
	default:
	}
	if _, err := c.Writer.Write([]byte(message)); err != nil {
		return err
	}
	c.Flusher.Flush()
	return nil
}

// drain waits out an in-flight write so nothing touches Writer after the
// handler returns.
func (c *Client) drain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Writer = nil
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleSSE handles an SSE connection request. It blocks until the client
// disconnects or is dropped as dead.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client, err := b.AddClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() {
		b.RemoveClient(client)
		client.drain()
	}()

	hello, _ := format(Event{Type: EventConnected, Data: map[string]string{"clientId": client.ID}})
	if err := client.write(hello); err != nil {
		return
	}

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case <-ticker.C:
			if err := client.write(": ping\n\n"); err != nil {
				return
			}
		}
	}
}
