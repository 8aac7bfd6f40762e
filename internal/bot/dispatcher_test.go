package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shortsbot/internal/bus"
	"shortsbot/internal/domain"
)

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	var active, maxActive, handled atomic.Int32
	h := HandlerFunc(func(ctx context.Context, msg domain.InboundMessage) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		handled.Add(1)
		return nil
	})

	b := bus.New(32, testLogger())
	for i := 1; i <= 20; i++ {
		b.Publish(domain.InboundMessage{UpdateID: i})
	}
	b.Close()

	d := NewDispatcher(h, 3, testLogger())
	d.Run(context.Background(), b)
	d.Wait()

	if handled.Load() != 20 {
		t.Fatalf("handled %d updates, want 20", handled.Load())
	}
	if maxActive.Load() > 3 {
		t.Fatalf("concurrency exceeded: %d", maxActive.Load())
	}
}

func TestDispatcher_DrainsQueueAfterCancel(t *testing.T) {
	release := make(chan struct{})
	var handled atomic.Int32
	h := HandlerFunc(func(ctx context.Context, msg domain.InboundMessage) error {
		<-release
		handled.Add(1)
		return nil
	})

	b := bus.New(8, testLogger())
	for i := 1; i <= 5; i++ {
		b.Publish(domain.InboundMessage{UpdateID: i})
	}

	d := NewDispatcher(h, 1, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, b)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	b.Close()
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the bus was closed")
	}
	d.Wait()

	if handled.Load() != 5 {
		t.Fatalf("handled %d updates, want 5", handled.Load())
	}
	if b.Len() != 0 {
		t.Fatalf("%d updates left in the bus", b.Len())
	}
}

func TestDispatcher_HandlersOutliveCancel(t *testing.T) {
	release := make(chan struct{})
	var handlerErr error
	var mu sync.Mutex
	h := HandlerFunc(func(ctx context.Context, msg domain.InboundMessage) error {
		<-release
		mu.Lock()
		handlerErr = ctx.Err()
		mu.Unlock()
		return nil
	})

	b := bus.New(1, testLogger())
	b.Publish(domain.InboundMessage{UpdateID: 1})

	d := NewDispatcher(h, 1, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, b)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	b.Close()
	close(release)
	<-done
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if handlerErr != nil {
		t.Fatalf("in-flight handler context was cancelled: %v", handlerErr)
	}
}

func TestDispatcher_AttachesRequestLogger(t *testing.T) {
	var got bool
	h := HandlerFunc(func(ctx context.Context, msg domain.InboundMessage) error {
		got = LoggerFrom(ctx, nil) != nil
		return nil
	})

	NewDispatcher(h, 1, testLogger()).Dispatch(context.Background(), domain.InboundMessage{UpdateID: 5})
	if !got {
		t.Fatal("handler context must carry the update logger")
	}
}
