package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/identity"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

type fakeDirectory struct{ known map[string]bool }

func (f *fakeDirectory) FindCustomer(_ context.Context, id string) (models.CustomerSnapshot, error) {
	return models.CustomerSnapshot{ID: id}, nil
}

func (f *fakeDirectory) FindDriver(_ context.Context, id string) (models.DriverSnapshot, error) {
	if f.known != nil && !f.known[id] {
		return models.DriverSnapshot{}, identity.ErrNotFound
	}
	return models.DriverSnapshot{ID: id, Name: "driver " + id}, nil
}

func newTracker(dir identity.Directory) (*Tracker, *storage.MemoryStore, *geo.MemoryIndex, clockwork.FakeClock) {
	store := storage.NewMemoryStore()
	index := geo.NewIndex()
	clock := clockwork.NewFakeClock()
	return New(dir, store, index, clock, slog.New(slog.NewTextHandler(io.Discard, nil))), store, index, clock
}

func TestReportPositionStoresAndIndexes(t *testing.T) {
	ctx := context.Background()
	tr, store, index, clock := newTracker(&fakeDirectory{})
	loc := models.Coord{Lat: 31.0004, Lon: 121.0005}

	if err := tr.ReportPosition(ctx, "42", loc); err != nil {
		t.Fatalf("report: %v", err)
	}
	p, err := store.GetPosition(ctx, "42")
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if p.Loc != loc || p.Driver.Name != "driver 42" || !p.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("unexpected position %+v", p)
	}
	ids, _ := index.Radius(ctx, loc, 10)
	if len(ids) != 1 || ids[0] != "42" {
		t.Fatalf("expected driver indexed, got %v", ids)
	}
}

func TestReportPositionUnknownDriverFailsFast(t *testing.T) {
	ctx := context.Background()
	tr, store, index, _ := newTracker(&fakeDirectory{known: map[string]bool{}})
	loc := models.Coord{Lat: 31, Lon: 121}

	err := tr.ReportPosition(ctx, "99", loc)
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.PositionCount() != 0 {
		t.Fatal("unknown driver must not be stored")
	}
	if ids, _ := index.Radius(ctx, loc, 500); len(ids) != 0 {
		t.Fatalf("unknown driver must not be indexed, got %v", ids)
	}
}

// driver 42 reports A then B: only B's area finds it afterwards
func TestReportPositionTwiceKeepsLatest(t *testing.T) {
	ctx := context.Background()
	tr, store, index, clock := newTracker(&fakeDirectory{})
	a := models.Coord{Lat: 31.000, Lon: 121.000}
	b := models.Coord{Lat: 31.100, Lon: 121.100}

	_ = tr.ReportPosition(ctx, "42", a)
	clock.Advance(time.Second)
	_ = tr.ReportPosition(ctx, "42", b)

	if store.PositionCount() != 1 {
		t.Fatalf("expected one live record, got %d", store.PositionCount())
	}
	p, _ := store.GetPosition(ctx, "42")
	if p.Loc != b {
		t.Fatalf("expected second report to win, got %+v", p.Loc)
	}
	if ids, _ := index.Radius(ctx, a, 500); len(ids) != 0 {
		t.Fatalf("driver still visible at A: %v", ids)
	}
	if ids, _ := index.Radius(ctx, b, 500); len(ids) != 1 || ids[0] != "42" {
		t.Fatalf("driver not visible at B: %v", ids)
	}
}

func TestConcurrentReportsFromManyDrivers(t *testing.T) {
	ctx := context.Background()
	tr, store, index, _ := newTracker(&fakeDirectory{})
	center := models.Coord{Lat: 31, Lon: 121}
	var wg sync.WaitGroup
	for d := 0; d < 50; d++ {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(d, i int) {
				defer wg.Done()
				loc := models.Coord{Lat: center.Lat + float64(i)*1e-5, Lon: center.Lon}
				if err := tr.ReportPosition(ctx, fmt.Sprintf("d%d", d), loc); err != nil {
					t.Errorf("report: %v", err)
				}
			}(d, i)
		}
	}
	wg.Wait()
	if store.PositionCount() != 50 {
		t.Fatalf("expected 50 positions, got %d", store.PositionCount())
	}
	if ids, _ := index.Radius(ctx, center, 500); len(ids) != 50 {
		t.Fatalf("expected 50 indexed drivers, got %d", len(ids))
	}
}
