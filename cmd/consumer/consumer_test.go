package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/identity"
	"github.com/example/ride-dispatch/internal/models"
)

// fakeReporter fails the first fail calls with err before succeeding.
type fakeReporter struct {
	mu    sync.Mutex
	fail  int
	err   error
	calls int
	last  models.LocationReport
}

func (f *fakeReporter) ReportPosition(_ context.Context, driverID string, loc models.Coord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return f.err
	}
	f.last = models.LocationReport{DriverID: driverID, Loc: loc}
	return nil
}

func (f *fakeReporter) lastDriver() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last.DriverID
}

var report = models.LocationReport{DriverID: "d1", Loc: models.Coord{Lat: 1, Lon: 2}}

func TestReportWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeReporter{fail: 2, err: errors.New("redis fail")}
	start := time.Now()
	if err := reportWithRetry(context.Background(), f, report, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected backoff between attempts")
	}
	if f.last != report {
		t.Fatalf("unexpected report %+v", f.last)
	}
}

func TestReportWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeReporter{fail: 5, err: errors.New("redis fail")}
	if err := reportWithRetry(context.Background(), f, report, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
}

func TestReportWithRetry_UnknownDriverNotRetried(t *testing.T) {
	f := &fakeReporter{fail: 5, err: fmt.Errorf("driver d1: %w", identity.ErrNotFound)}
	err := reportWithRetry(context.Background(), f, report, 3, 5*time.Millisecond)
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", f.calls)
	}
}

// scriptedReader returns msgs in order, then blocks until ctx is done.
type scriptedReader struct {
	msgs []kafka.Message
}

func (s *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(s.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := s.msgs[0]
	s.msgs = s.msgs[1:]
	return m, nil
}

func TestConsumeAppliesValidMessages(t *testing.T) {
	r := &scriptedReader{msgs: []kafka.Message{
		{Value: []byte("garbage")},
		{Key: []byte("d9"), Value: []byte(`{"driver_id":"d9","loc":{"lat":31,"lon":121}}`)},
	}}
	f := &fakeReporter{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consume(ctx, r, f, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.lastDriver() != "d9" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if f.calls != 1 || f.last.DriverID != "d9" {
		t.Fatalf("expected one applied report for d9, got calls=%d last=%+v", f.calls, f.last)
	}
}

func TestWarnLocalPositions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	if !warnLocalPositions(config.ConsumerConfig{}, logger) {
		t.Fatal("expected a warning without PG_DSN")
	}
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "PG_DSN") {
		t.Fatalf("unexpected log %q", buf.String())
	}
	buf.Reset()
	if warnLocalPositions(config.ConsumerConfig{PGDSN: "postgres://db"}, logger) || buf.Len() != 0 {
		t.Fatalf("no warning expected with PG_DSN, got %q", buf.String())
	}
}
