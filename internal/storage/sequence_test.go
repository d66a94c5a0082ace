package storage

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisSequenceSharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	newSeq := func() *RedisSequence {
		rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rc.Close() })
		return NewRedisSequence(rc)
	}
	// a second instance stands in for another process or a restart
	a, b := newSeq(), newSeq()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		for _, seq := range []*RedisSequence{a, b} {
			id, err := seq.NextOrderID(ctx)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if seen[id] {
				t.Fatalf("duplicate id %s", id)
			}
			seen[id] = true
		}
	}
	if !seen["T0000000100"] {
		t.Fatalf("expected ids up to T0000000100")
	}
}

func TestRedisSequenceError(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()
	mr.Close()
	if _, err := NewRedisSequence(rc).NextOrderID(context.Background()); err == nil {
		t.Fatal("expected error from a closed server")
	}
}

func TestPostgresSequenceSharedAcrossInstances(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	nextval := regexp.QuoteMeta(`SELECT nextval('order_seq')`)
	mock.ExpectQuery(nextval).WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(41))
	mock.ExpectQuery(nextval).WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(42))

	// two stores over one database, as after a restart
	first := (&PostgresStore{db: db}).Sequence()
	second := (&PostgresStore{db: db}).Sequence()
	a, err := first.NextOrderID(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	b, err := second.NextOrderID(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if a != "T0000000041" || b != "T0000000042" {
		t.Fatalf("unexpected ids %s %s", a, b)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
