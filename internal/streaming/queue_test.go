package streaming

import (
	"testing"
	"time"
)

func TestPacketQueueEnqueueDequeueOrder(t *testing.T) {
	q := newPacketQueue(QueueConfig{Depth: 4})
	stop := make(chan struct{})

	for i := uint16(0); i < 3; i++ {
		if err := q.enqueue(queueItem{seq: i}, stop); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if q.depth() != 3 {
		t.Fatalf("depth = %d, want 3", q.depth())
	}

	for i := uint16(0); i < 3; i++ {
		item, err := q.dequeue()
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if item.seq != i {
			t.Fatalf("dequeue order broken: got seq %d, want %d", item.seq, i)
		}
	}
}

func TestPacketQueueBlocksAtDepthThenUnblocks(t *testing.T) {
	q := newPacketQueue(QueueConfig{Depth: 2})
	stop := make(chan struct{})

	if err := q.enqueue(queueItem{seq: 0}, stop); err != nil {
		t.Fatalf("enqueue 0: %v", err)
	}
	if err := q.enqueue(queueItem{seq: 1}, stop); err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- q.enqueue(queueItem{seq: 2}, stop)
	}()

	select {
	case <-done:
		t.Fatalf("enqueue at full depth must block until a slot frees up")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := q.dequeue(); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked enqueue returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked enqueue never unblocked after a dequeue freed a slot")
	}
}

func TestPacketQueueCloseUnblocksWaiters(t *testing.T) {
	q := newPacketQueue(QueueConfig{Depth: 1})

	done := make(chan error, 1)
	go func() {
		_, err := q.dequeue()
		done <- err
	}()

	q.close()

	select {
	case err := <-done:
		if err != errQueueClosed {
			t.Fatalf("expected errQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("close did not unblock a waiting dequeue")
	}
}

func TestPacketQueueEnqueueStopSignal(t *testing.T) {
	q := newPacketQueue(QueueConfig{Depth: 1})
	stop := make(chan struct{})

	if err := q.enqueue(queueItem{seq: 0}, stop); err != nil {
		t.Fatalf("enqueue 0: %v", err)
	}

	close(stop)
	if err := q.enqueue(queueItem{seq: 1}, stop); err != errQueueStopped {
		t.Fatalf("expected errQueueStopped, got %v", err)
	}
}
