package sse

import (
	"testing"

	"crm_pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

func TestPublishReachesEveryTenantConnection(t *testing.T) {
	s := New(logger.Discard())
	tenantID := uuid.New()

	a, unsubA := s.Subscribe(tenantID)
	b, unsubB := s.Subscribe(tenantID)
	defer unsubB()

	if n := s.Publish(tenantID, Event{Type: EventNotification}); n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	<-a
	<-b

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Error("channel still open after unsubscribe")
	}
	if n := s.Publish(tenantID, Event{Type: EventNotification}); n != 1 {
		t.Errorf("delivered after unsubscribe = %d, want 1", n)
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	s := New(logger.Discard())
	tenantID := uuid.New()
	_, unsub := s.Subscribe(tenantID)
	defer unsub()

	for i := 0; i < clientBuffer; i++ {
		s.Publish(tenantID, Event{Type: EventNotification})
	}
	if n := s.Publish(tenantID, Event{Type: EventNotification}); n != 0 {
		t.Errorf("delivered to full buffer = %d, want 0", n)
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	s := New(logger.Discard())
	ch, unsub := s.Subscribe(uuid.New())

	s.Close()
	if _, ok := <-ch; ok {
		t.Error("channel still open after Close")
	}
	unsub()

	late, _ := s.Subscribe(uuid.New())
	if _, ok := <-late; ok {
		t.Error("subscription after Close left open")
	}
}
