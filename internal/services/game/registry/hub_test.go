package registry

import (
	"testing"
	"time"

	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/broadcast"
)

func TestHubBroadcastDeliversInOrder(t *testing.T) {
	hub := newHub()
	sub := hub.Subscribe()
	if sub == nil {
		t.Fatal("expected subscription from open hub")
	}
	defer sub.Close()

	for i := int64(1); i <= 3; i++ {
		hub.Broadcast(broadcast.Message{Kind: broadcast.KindStateUpdate, Version: i})
	}

	for want := int64(1); want <= 3; want++ {
		select {
		case msg := <-sub.Events():
			if msg.Version != want {
				t.Fatalf("version = %d, want %d", msg.Version, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for broadcast %d", want)
		}
	}
}

func TestHubDropsWhenSubscriberStaysFull(t *testing.T) {
	hub := newHub()
	sub := hub.Subscribe()
	defer sub.Close()

	total := subscriberBuffer + 4
	for i := 0; i < total; i++ {
		hub.Broadcast(broadcast.Message{Kind: broadcast.KindStateUpdate, Version: int64(i + 1)})
	}

	received := 0
drain:
	for {
		select {
		case <-sub.Events():
			received++
		default:
			break drain
		}
	}
	if received != subscriberBuffer {
		t.Fatalf("received = %d, want buffer depth %d", received, subscriberBuffer)
	}
}

func TestHubSlowSubscriberDoesNotStallOthers(t *testing.T) {
	hub := newHub()
	slow := hub.Subscribe()
	defer slow.Close()
	fast := hub.Subscribe()
	defer fast.Close()

	// Fill the slow subscriber's buffer so further fanout must drop for it.
	for i := 0; i < subscriberBuffer; i++ {
		hub.Broadcast(broadcast.Message{Kind: broadcast.KindStateUpdate, Version: int64(i + 1)})
	}
	for i := 0; i < subscriberBuffer; i++ {
		<-fast.Events()
	}

	hub.Broadcast(broadcast.Message{Kind: broadcast.KindStateUpdate, Version: 99})
	select {
	case msg := <-fast.Events():
		if msg.Version != 99 {
			t.Fatalf("version = %d, want 99", msg.Version)
		}
	case <-time.After(time.Second):
		t.Fatal("fast subscriber starved by slow one")
	}
}

func TestHubCloseClosesSubscriberChannels(t *testing.T) {
	hub := newHub()
	sub := hub.Subscribe()

	hub.Close()

	select {
	case _, open := <-sub.Events():
		if open {
			t.Fatal("expected closed events channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	if got := hub.Subscribe(); got != nil {
		t.Fatal("expected nil subscription from closed hub")
	}
	hub.Close()
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	hub := newHub()
	sub := hub.Subscribe()

	sub.Close()
	sub.Close()

	if got := hub.Subscribers(); got != 0 {
		t.Fatalf("subscribers = %d, want 0", got)
	}
}
