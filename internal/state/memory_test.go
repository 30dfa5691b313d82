package state

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryTrackerLastExecution(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	last, err := tracker.LastExecution(ctx, "0xabc")
	if err != nil {
		t.Fatalf("last execution: %v", err)
	}
	if last != nil {
		t.Fatalf("expected nil without history, got %v", last)
	}

	first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(5 * time.Minute)
	if err := tracker.RecordExecution(ctx, "0xABC", first); err != nil {
		t.Fatalf("record execution: %v", err)
	}
	if err := tracker.RecordExecution(ctx, "0xabc", second); err != nil {
		t.Fatalf("record execution: %v", err)
	}

	last, err = tracker.LastExecution(ctx, "0xabc")
	if err != nil {
		t.Fatalf("last execution: %v", err)
	}
	if last == nil || !last.Equal(second) {
		t.Fatalf("expected last execution %v, got %v", second, last)
	}
}

func TestMemoryTrackerRetention(t *testing.T) {
	tracker := NewMemoryTracker(WithRetention(time.Hour))
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	tracker.RecordExecution(ctx, "0xabc", base)
	tracker.RecordExecution(ctx, "0xabc", base.Add(30*time.Minute))
	tracker.RecordExecution(ctx, "0xabc", base.Add(2*time.Hour))

	snap, err := tracker.Snapshot(ctx, "0xabc")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.RecentEvents) != 1 {
		t.Fatalf("expected events outside the window to be pruned, got %d remaining", len(snap.RecentEvents))
	}
	if !snap.RecentEvents[0].Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("unexpected retained event: %v", snap.RecentEvents[0])
	}
}

func TestMemoryTrackerConcurrentRecord(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			tracker.RecordExecution(ctx, "0xabc", base.Add(time.Duration(offset)*time.Second))
		}(i)
	}
	wg.Wait()

	snap, err := tracker.Snapshot(ctx, "0xabc")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.RecentEvents) != 50 {
		t.Fatalf("expected 50 recorded events, got %d", len(snap.RecentEvents))
	}
	if snap.LastExecution == nil || !snap.LastExecution.Equal(base.Add(49*time.Second)) {
		t.Fatalf("unexpected last execution: %v", snap.LastExecution)
	}
}
