package database

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/config"
	"github.com/TemirB/musicnft/internal/domain"
)

type Repo struct {
	pool   *pgxpool.Pool
	tables config.Tables
}

func New(pool *pgxpool.Pool, t config.Tables) *Repo { return &Repo{pool: pool, tables: t} }

// Connect opens a traced pool and pings it once.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   newZapTracer(logger),
		LogLevel: tracelog.LogLevelWarn,
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (r *Repo) qt(tbl string) string { return qualify(r.tables.Schema, tbl) }

func qualify(schema, tbl string) string {
	return pgx.Identifier{schema, tbl}.Sanitize()
}

// EnsureSchema creates the documents and listings tables when missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{r.tables.Schema}.Sanitize()),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
			  cid        TEXT PRIMARY KEY,
			  body       BYTEA NOT NULL,
			  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, r.qt(r.tables.Documents)),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
			  token_id   NUMERIC(78,0) PRIMARY KEY,
			  seller     TEXT NOT NULL,
			  price      NUMERIC(78,0) NOT NULL,
			  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, r.qt(r.tables.Listings)),
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// SaveDocument keeps the first body stored for a CID. Content addressing makes
// later writes for the same key redundant.
func (r *Repo) SaveDocument(ctx context.Context, cid string, body []byte) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (cid, body) VALUES ($1, $2)
		ON CONFLICT (cid) DO NOTHING
	`, r.qt(r.tables.Documents)), cid, body)
	return err
}

func (r *Repo) GetDocument(ctx context.Context, cid string) ([]byte, error) {
	var body []byte
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT body FROM %s WHERE cid=$1`, r.qt(r.tables.Documents)), cid).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (r *Repo) RecentDocumentCIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT cid FROM %s
		ORDER BY created_at DESC
		LIMIT $1
	`, r.qt(r.tables.Documents)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repo) UpsertListing(ctx context.Context, l *domain.Listing) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (token_id, seller, price, updated_at)
		VALUES ($1::numeric, $2, $3::numeric, now())
		ON CONFLICT (token_id) DO UPDATE SET
		  seller=EXCLUDED.seller,
		  price=EXCLUDED.price,
		  updated_at=EXCLUDED.updated_at
	`, r.qt(r.tables.Listings)), l.TokenID.String(), l.Seller, l.Price.String())
	return err
}

func (r *Repo) DeleteListing(ctx context.Context, tokenID *big.Int) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE token_id=$1::numeric`, r.qt(r.tables.Listings)), tokenID.String())
	return err
}

func (r *Repo) ActiveListings(ctx context.Context) ([]domain.Listing, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT token_id::text, seller, price::text FROM %s
		WHERE price > 0
		ORDER BY token_id
	`, r.qt(r.tables.Listings)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		var id, seller, price string
		if err := rows.Scan(&id, &seller, &price); err != nil {
			return nil, err
		}
		l, err := parseListing(id, seller, price)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func parseListing(id, seller, price string) (domain.Listing, error) {
	tokenID, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return domain.Listing{}, fmt.Errorf("bad token_id %q", id)
	}
	p, ok := new(big.Int).SetString(price, 10)
	if !ok {
		return domain.Listing{}, fmt.Errorf("bad price %q", price)
	}
	return domain.Listing{TokenID: tokenID, Seller: seller, Price: p}, nil
}
