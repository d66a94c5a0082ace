package geo

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// one thousandth of a degree of latitude is about 111 m
	d := Haversine(31.000, 121.000, 31.001, 121.000)
	if d < 110 || d > 112 {
		t.Fatalf("expected ~111m, got %f", d)
	}
}

func TestRadiusFindsDriverWithin500m(t *testing.T) {
	ctx := context.Background()
	g := NewIndex()
	_ = g.Upsert(ctx, "d1", models.Coord{Lat: 31.0004, Lon: 121.0005})
	_ = g.Upsert(ctx, "far", models.Coord{Lat: 31.1, Lon: 121.1})

	ids, err := g.Radius(ctx, models.Coord{Lat: 31.000, Lon: 121.000}, 500)
	if err != nil {
		t.Fatalf("radius: %v", err)
	}
	if len(ids) != 1 || ids[0] != "d1" {
		t.Fatalf("expected [d1], got %v", ids)
	}
}

func TestUpsertReplacesPosition(t *testing.T) {
	ctx := context.Background()
	g := NewIndex()
	a := models.Coord{Lat: 31.000, Lon: 121.000}
	b := models.Coord{Lat: 31.050, Lon: 121.050}
	_ = g.Upsert(ctx, "42", a)
	_ = g.Upsert(ctx, "42", b)

	ids, _ := g.Radius(ctx, a, 500)
	if len(ids) != 0 {
		t.Fatalf("expected driver gone from old position, got %v", ids)
	}
	ids, _ = g.Radius(ctx, b, 500)
	if len(ids) != 1 || ids[0] != "42" {
		t.Fatalf("expected [42] at new position, got %v", ids)
	}
}

func TestConcurrentUpsertsKeepOneEntryPerDriver(t *testing.T) {
	ctx := context.Background()
	g := NewIndex()
	center := models.Coord{Lat: 31.0, Lon: 121.0}
	var wg sync.WaitGroup
	for d := 0; d < 20; d++ {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(d, i int) {
				defer wg.Done()
				_ = g.Upsert(ctx, fmt.Sprintf("d%02d", d), models.Coord{Lat: center.Lat + float64(i)*1e-6, Lon: center.Lon})
			}(d, i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Radius(ctx, center, 500)
		}()
	}
	wg.Wait()

	ids, _ := g.Radius(ctx, center, 500)
	if len(ids) != 20 {
		t.Fatalf("expected 20 drivers, got %d", len(ids))
	}
}
