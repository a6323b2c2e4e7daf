// Package sse streams tenant notifications to connected clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"crm_pipeline_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventNotification EventType = "notification"
	EventLeadMoved    EventType = "lead_moved"
)

const (
	clientBuffer      = 32
	heartbeatInterval = 25 * time.Second
)

// Event represents an SSE event payload
type Event struct {
	Type    EventType   `json:"type"`
	LeadID  *uuid.UUID  `json:"leadId,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// client represents a connected SSE client
type client struct {
	tenantID uuid.UUID
	events   chan Event
}

// Service fans events out to every connection of a tenant.
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client // tenantID -> clients
	closed  bool
	log     *logger.Logger
}

func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[uuid.UUID][]*client),
		log:     log,
	}
}

// Subscribe registers a listener for the tenant. The returned func unregisters it.
func (s *Service) Subscribe(tenantID uuid.UUID) (<-chan Event, func()) {
	c := &client{tenantID: tenantID, events: make(chan Event, clientBuffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(c.events)
		return c.events, func() {}
	}
	s.clients[tenantID] = append(s.clients[tenantID], c)
	s.mu.Unlock()

	var once sync.Once
	return c.events, func() {
		once.Do(func() { s.removeClient(c) })
	}
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.tenantID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.tenantID] = append(clients[:i:i], clients[i+1:]...)
			close(c.events)
			break
		}
	}
	if len(s.clients[c.tenantID]) == 0 {
		delete(s.clients, c.tenantID)
	}
}

// Publish sends an event to every connection of the tenant. Slow clients drop events.
func (s *Service) Publish(tenantID uuid.UUID, event Event) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0
	for _, c := range s.clients[tenantID] {
		select {
		case c.events <- event:
			delivered++
		default:
			s.log.Warn("sse buffer full, event dropped", "tenant_id", tenantID, "type", event.Type)
		}
	}
	return delivered
}

// Handler returns a Gin handler streaming the caller's tenant events.
func (s *Service) Handler(getTenantID func(*gin.Context) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := getTenantID(c)
		if !ok {
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		events, unsubscribe := s.Subscribe(tenantID)
		defer unsubscribe()

		c.SSEvent("connected", gin.H{"tenantId": tenantID})
		c.Writer.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case <-heartbeat.C:
				c.SSEvent("ping", "")
				c.Writer.Flush()
			case event, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					continue
				}
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close disconnects every client.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[uuid.UUID][]*client)
	s.closed = true
}
