package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// Migrate applies the embedded migrations in file name order. Every statement
// is idempotent.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }

// Sequence returns an IDGenerator backed by this database.
func (p *PostgresStore) Sequence() *PostgresSequence { return &PostgresSequence{db: p.db} }

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) SaveOrder(ctx context.Context, o *models.Order) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO orders(
		id, intention_id, status, opened_at,
		customer_id, customer_name, customer_mobile,
		driver_id, driver_name, driver_mobile, driver_plate,
		start_lat, start_lon, dest_lat, dest_lon
	) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		o.ID, o.IntentionID, string(o.Status), o.OpenedAt,
		o.Customer.ID, o.Customer.Name, o.Customer.Mobile,
		o.Driver.ID, o.Driver.Name, o.Driver.Mobile, o.Driver.Plate,
		o.Start.Lat, o.Start.Lon, o.Dest.Lat, o.Dest.Lon)
	return err
}

func (p *PostgresStore) InTx(ctx context.Context, fn func(tx OrderTx) error) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT
		id, intention_id, status, opened_at,
		customer_id, customer_name, customer_mobile,
		driver_id, driver_name, driver_mobile, driver_plate,
		start_lat, start_lon, dest_lat, dest_lon
	FROM orders WHERE id = $1`, id)
	var o models.Order
	var status string
	err := row.Scan(&o.ID, &o.IntentionID, &status, &o.OpenedAt,
		&o.Customer.ID, &o.Customer.Name, &o.Customer.Mobile,
		&o.Driver.ID, &o.Driver.Name, &o.Driver.Mobile, &o.Driver.Plate,
		&o.Start.Lat, &o.Start.Lon, &o.Dest.Lat, &o.Dest.Lon)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = models.Status(status)
	return &o, nil
}

func (p *PostgresStore) SavePosition(ctx context.Context, dp *models.DriverPosition) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO driver_positions(
		driver_id, lat, lon, driver_name, driver_mobile, driver_plate, updated_at
	) VALUES($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (driver_id) DO UPDATE SET
		lat = EXCLUDED.lat, lon = EXCLUDED.lon,
		driver_name = EXCLUDED.driver_name, driver_mobile = EXCLUDED.driver_mobile,
		driver_plate = EXCLUDED.driver_plate, updated_at = EXCLUDED.updated_at`,
		dp.DriverID, dp.Loc.Lat, dp.Loc.Lon, dp.Driver.Name, dp.Driver.Mobile, dp.Driver.Plate, dp.UpdatedAt)
	return err
}

func (p *PostgresStore) GetPosition(ctx context.Context, driverID string) (*models.DriverPosition, error) {
	row := p.db.QueryRowContext(ctx, `SELECT driver_id, lat, lon, driver_name, driver_mobile, driver_plate, updated_at
		FROM driver_positions WHERE driver_id = $1`, driverID)
	var dp models.DriverPosition
	err := row.Scan(&dp.DriverID, &dp.Loc.Lat, &dp.Loc.Lon, &dp.Driver.Name, &dp.Driver.Mobile, &dp.Driver.Plate, &dp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	dp.Driver.ID = dp.DriverID
	return &dp, nil
}
