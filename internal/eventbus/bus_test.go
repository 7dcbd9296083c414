package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 10)
	bus.Subscribe(TopicConsensusSignal, received)

	bus.Publish(Event{
		Type:      TopicConsensusSignal,
		Wallet:    "0xabc",
		Timestamp: time.Now(),
		Data:      map[string]string{"symbol": "PEPE"},
	})

	select {
	case evt := <-received:
		if evt.Type != TopicConsensusSignal {
			t.Errorf("expected %s, got %s", TopicConsensusSignal, evt.Type)
		}
		if evt.Wallet != "0xabc" {
			t.Errorf("expected wallet 0xabc, got %s", evt.Wallet)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch1 := make(chan Event, 10)
	ch2 := make(chan Event, 10)
	bus.Subscribe(TopicPositionChange, ch1)
	bus.Subscribe(TopicPositionChange, ch2)

	bus.Publish(Event{Type: TopicPositionChange, Wallet: "0xabc"})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_TypeFiltering(t *testing.T) {
	bus := New()
	defer bus.Close()

	signalCh := make(chan Event, 10)
	changeCh := make(chan Event, 10)
	bus.Subscribe(TopicConsensusSignal, signalCh)
	bus.Subscribe(TopicPositionChange, changeCh)

	bus.Publish(Event{Type: TopicConsensusSignal})

	select {
	case <-signalCh:
	case <-time.After(time.Second):
		t.Fatal("signal subscriber did not receive event")
	}

	select {
	case <-changeCh:
		t.Fatal("change subscriber should NOT receive consensus events")
	case <-time.After(50 * time.Millisecond):
		// good
	}
}

func TestBus_PublishBatch(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 100)
	bus.Subscribe(TopicPositionChange, received)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(Event{Type: TopicPositionChange})
		}()
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)
	if len(received) != 50 {
		t.Errorf("expected 50 events, got %d", len(received))
	}
}
