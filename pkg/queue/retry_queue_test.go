package queue

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func item(batch, url string, pos int) RetryItem {
	return RetryItem{Endpoint: models.ProfileEndpoint{Batch: batch, URL: url}, Position: pos}
}

func TestRetryQueue_New(t *testing.T) {
	q := NewRetryQueue(10, testLogger())
	if q.Len() != 0 {
		t.Errorf("New queue Len() = %d, want 0", q.Len())
	}
	if got := q.Drain(); len(got) != 0 {
		t.Errorf("Drain() on empty queue = %v, want empty", got)
	}
}

func TestRetryQueue_DrainFollowsPosition(t *testing.T) {
	q := NewRetryQueue(10, testLogger())
	q.Add(item("b", "u7", 7))
	q.Add(item("b", "u2", 2))
	q.Add(item("b", "u5", 5))

	got := q.Drain()
	expected := []string{"u2", "u5", "u7"}
	if len(got) != len(expected) {
		t.Fatalf("Drain() returned %d items, want %d", len(got), len(expected))
	}
	for i, url := range expected {
		if got[i].Endpoint.URL != url {
			t.Errorf("Drain()[%d] = %q, want %q", i, got[i].Endpoint.URL, url)
		}
	}
	if q.Len() != 0 {
		t.Errorf("after Drain Len() = %d, want 0", q.Len())
	}
}

func TestRetryQueue_RejectsDuplicates(t *testing.T) {
	q := NewRetryQueue(10, testLogger())
	if !q.Add(item("b", "u1", 1)) {
		t.Fatal("first Add should succeed")
	}
	if q.Add(item("b", "u1", 4)) {
		t.Error("duplicate (batch, url) should be rejected")
	}
	if !q.Add(item("other", "u1", 1)) {
		t.Error("same url in a different batch is a distinct item")
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}

	q.Drain()
	if !q.Add(item("b", "u1", 1)) {
		t.Error("Drain should clear dedup state")
	}
}

func TestRetryQueue_Bounded(t *testing.T) {
	q := NewRetryQueue(2, testLogger())
	q.Add(item("b", "u1", 1))
	q.Add(item("b", "u2", 2))
	if q.Add(item("b", "u3", 3)) {
		t.Error("Add beyond capacity should fail")
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}
}

func TestRetryQueue_Unbounded(t *testing.T) {
	q := NewRetryQueue(0, testLogger())
	for i := 0; i < 50; i++ {
		q.Add(item("b", fmt.Sprintf("u%d", i), i))
	}
	if q.Len() != 50 {
		t.Errorf("Len() = %d, want 50", q.Len())
	}
}

func TestRetryQueue_ConcurrentAdd(t *testing.T) {
	q := NewRetryQueue(0, testLogger())
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Add(item("b", fmt.Sprintf("u%d", i%40), i%40))
		}(i)
	}
	wg.Wait()

	got := q.Drain()
	if len(got) != 40 {
		t.Fatalf("Drain() returned %d items, want 40", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Position > got[i].Position {
			t.Fatalf("items out of order at %d: %d > %d", i, got[i-1].Position, got[i].Position)
		}
	}
}
