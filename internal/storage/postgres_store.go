package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/example/parcel-express/internal/contact"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

// Migrate applies the embedded migrations in name order. They are idempotent.
func (p *PostgresStore) Migrate(ctx context.Context) ([]string, error) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := migrations.ReadFile("migrations/" + n)
		if err != nil {
			return nil, err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return nil, fmt.Errorf("migration %s: %w", n, err)
		}
	}
	return names, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) SaveEnquiry(ctx context.Context, e contact.Enquiry) (Enquiry, error) {
	if err := validate(e); err != nil {
		return Enquiry{}, err
	}
	rec := Enquiry{ID: uuid.NewString(), ReceivedAt: p.now().UTC(), Enquiry: e}
	_, err := p.db.ExecContext(ctx, `INSERT INTO enquiries(id, name, phone, pickup, delivery, message, received_at) VALUES($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, e.Name, e.Phone, e.Pickup, e.Delivery, e.Message, rec.ReceivedAt)
	if err != nil {
		return Enquiry{}, err
	}
	return rec, nil
}

func (p *PostgresStore) RecentEnquiries(ctx context.Context, limit int) ([]Enquiry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, phone, pickup, delivery, message, received_at FROM enquiries ORDER BY received_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Enquiry
	for rows.Next() {
		var e Enquiry
		if err := rows.Scan(&e.ID, &e.Name, &e.Phone, &e.Pickup, &e.Delivery, &e.Message, &e.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error { return p.db.Close() }
