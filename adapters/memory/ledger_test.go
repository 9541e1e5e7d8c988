package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/artpar/quotagate/adapters/memory"
	"github.com/artpar/quotagate/domain/usage"
)

func TestLedger_AppendQueryOrder(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger(0)

	for i := 0; i < 3; i++ {
		l.Append(ctx, usage.Event{ID: fmt.Sprintf("e%d", i), APIKey: "k1", Path: "/p"})
	}
	l.Append(ctx, usage.Event{ID: "other", APIKey: "k2"})

	events, err := l.Query(ctx, "k1")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Query() len = %d, want 3", len(events))
	}
	for i, e := range events {
		if e.ID != fmt.Sprintf("e%d", i) {
			t.Errorf("events[%d].ID = %s", i, e.ID)
		}
	}

	n, _ := l.Count(ctx, "k2")
	if n != 1 {
		t.Errorf("Count(k2) = %d, want 1", n)
	}
	if n, _ := l.Count(ctx, "none"); n != 0 {
		t.Errorf("Count(none) = %d, want 0", n)
	}
}

func TestLedger_QueryIsolation(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger(1)
	l.Append(ctx, usage.Event{ID: "e1", APIKey: "k1"})

	events, _ := l.Query(ctx, "k1")
	events[0].ID = "tampered"

	again, _ := l.Query(ctx, "k1")
	if again[0].ID != "e1" {
		t.Error("reader mutated the ledger")
	}
}

func TestLedger_ConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger(4)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Append(ctx, usage.Event{ID: fmt.Sprintf("%d-%d", i, j), APIKey: "k1"})
			}
		}(i)
	}
	wg.Wait()

	if n, _ := l.Count(ctx, "k1"); n != 1000 {
		t.Errorf("Count() = %d, want 1000", n)
	}
}
