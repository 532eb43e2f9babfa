package events

import (
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/interfaces"
	"github.com/veoflow/veoflow/internal/models"
)

func newTestHub(throttle time.Duration) *Hub {
	return NewHub(throttle, arbor.NewLogger())
}

func TestHubPublishSubscribe(t *testing.T) {
	hub := newTestHub(0)
	defer hub.Close()

	ch, cancel := hub.Subscribe()
	defer cancel()

	event := interfaces.TaskEvent{TaskID: "task_1", Status: models.TaskStatusRendering}
	hub.Publish(event)

	select {
	case got := <-ch:
		if got.TaskID != "task_1" || got.Status != models.TaskStatusRendering {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestHubCancelStopsDelivery(t *testing.T) {
	hub := newTestHub(0)
	defer hub.Close()

	ch, cancel := hub.Subscribe()
	cancel()

	if _, open := <-ch; open {
		t.Error("channel should be closed after cancel")
	}

	// Publishing after cancel must not panic
	hub.Publish(interfaces.TaskEvent{TaskID: "task_2", Status: models.TaskStatusRendering})
}

func TestHubTerminalEventsBypassThrottle(t *testing.T) {
	hub := newTestHub(time.Hour)
	defer hub.Close()

	ch, cancel := hub.Subscribe()
	defer cancel()

	// First event consumes the only token
	hub.Publish(interfaces.TaskEvent{TaskID: "t", Status: models.TaskStatusRendering})
	<-ch

	// Throttled progress event is dropped
	hub.Publish(interfaces.TaskEvent{TaskID: "t", Status: models.TaskStatusRendering})
	select {
	case <-ch:
		t.Fatal("throttled progress event should have been dropped")
	case <-time.After(50 * time.Millisecond):
	}

	// Terminal event still goes through
	hub.Publish(interfaces.TaskEvent{TaskID: "t", Status: models.TaskStatusCompleted})
	select {
	case got := <-ch:
		if got.Status != models.TaskStatusCompleted {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("terminal event never delivered")
	}
}
