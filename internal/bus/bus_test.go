package bus

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"shortsbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishSubscribe(t *testing.T) {
	b := New(4, testLogger())

	if !b.Publish(domain.InboundMessage{UpdateID: 1, ChatID: 10, Text: "hi"}) {
		t.Fatal("publish should succeed")
	}
	if b.Len() != 1 {
		t.Fatalf("len = %d", b.Len())
	}

	select {
	case msg := <-b.Subscribe():
		if msg.UpdateID != 1 || msg.Text != "hi" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestPublish_PreservesOrder(t *testing.T) {
	b := New(10, testLogger())
	for i := 1; i <= 5; i++ {
		b.Publish(domain.InboundMessage{UpdateID: i})
	}
	b.Close()

	want := 1
	for msg := range b.Subscribe() {
		if msg.UpdateID != want {
			t.Fatalf("got update %d, want %d", msg.UpdateID, want)
		}
		want++
	}
	if want != 6 {
		t.Fatalf("drained %d updates", want-1)
	}
}

func TestPublish_AfterClose(t *testing.T) {
	b := New(1, testLogger())
	b.Close()
	b.Close()

	if b.Publish(domain.InboundMessage{UpdateID: 1}) {
		t.Fatal("publish on closed bus must fail")
	}
}

func TestPublish_FullBusTimesOut(t *testing.T) {
	b := New(1, testLogger())
	b.publishTimeout = 20 * time.Millisecond

	if !b.Publish(domain.InboundMessage{UpdateID: 1}) {
		t.Fatal("first publish should succeed")
	}
	start := time.Now()
	if b.Publish(domain.InboundMessage{UpdateID: 2}) {
		t.Fatal("publish on full bus should be dropped")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("publish should wait before dropping")
	}
}

func TestPublish_FullBusWaitsForReader(t *testing.T) {
	b := New(1, testLogger())
	b.publishTimeout = 2 * time.Second
	b.Publish(domain.InboundMessage{UpdateID: 1})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		<-b.Subscribe()
	}()

	if !b.Publish(domain.InboundMessage{UpdateID: 2}) {
		t.Fatal("publish should succeed once the reader drains")
	}
	wg.Wait()
}
