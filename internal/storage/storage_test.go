package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

func TestInTxCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	err := m.InTx(ctx, func(tx OrderTx) error {
		return tx.SaveOrder(ctx, &models.Order{ID: "T0000000001", Status: models.StatusOpened})
	})
	if err != nil {
		t.Fatalf("in tx: %v", err)
	}
	o, err := m.GetOrder(ctx, "T0000000001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.Status != models.StatusOpened {
		t.Fatalf("unexpected status %s", o.Status)
	}
}

func TestInTxDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	boom := errors.New("boom")
	err := m.InTx(ctx, func(tx OrderTx) error {
		_ = tx.SaveOrder(ctx, &models.Order{ID: "T0000000001"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := m.GetOrder(ctx, "T0000000001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no order after rollback, got %v", err)
	}
}

func TestInTxRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	save := func(tx OrderTx) error { return tx.SaveOrder(ctx, &models.Order{ID: "T1"}) }
	if err := m.InTx(ctx, save); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := m.InTx(ctx, save); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
	if len(m.Orders()) != 1 {
		t.Fatalf("expected 1 order, got %d", len(m.Orders()))
	}
}

func TestSavePositionOverwrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_ = m.SavePosition(ctx, &models.DriverPosition{DriverID: "42", Loc: models.Coord{Lat: 1, Lon: 1}, UpdatedAt: time.Unix(1, 0)})
	_ = m.SavePosition(ctx, &models.DriverPosition{DriverID: "42", Loc: models.Coord{Lat: 2, Lon: 2}, UpdatedAt: time.Unix(2, 0)})
	if m.PositionCount() != 1 {
		t.Fatalf("expected 1 position, got %d", m.PositionCount())
	}
	p, err := m.GetPosition(ctx, "42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Loc.Lat != 2 {
		t.Fatalf("expected second report, got %+v", p.Loc)
	}
}

func TestFormatOrderID(t *testing.T) {
	if got := FormatOrderID(42); got != "T0000000042" {
		t.Fatalf("unexpected id %s", got)
	}
}

func TestMemorySequenceUniqueUnderConcurrency(t *testing.T) {
	var seq MemorySequence
	const workers, each = 16, 200
	ids := make(chan string, workers*each)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				id, err := seq.NextOrderID(context.Background())
				if err != nil {
					t.Errorf("next: %v", err)
					return
				}
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)
	seen := make(map[string]bool, workers*each)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*each {
		t.Fatalf("expected %d ids, got %d", workers*each, len(seen))
	}
}
