package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore shares the ledger between runners through a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS mint_ledger (
    key TEXT PRIMARY KEY,
    campaign TEXT NOT NULL,
    network TEXT NOT NULL,
    address TEXT NOT NULL,
    account TEXT NOT NULL,
    tx_hash TEXT NOT NULL,
    outcome TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore connects using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	row := p.pool.QueryRow(ctx, `
SELECT campaign, network, address, account, tx_hash, outcome, created_at
FROM mint_ledger
WHERE key = $1
`, key)

	var e Entry
	if err := row.Scan(&e.Campaign, &e.Network, &e.Address, &e.Account, &e.TxHash, &e.Outcome, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (p *PostgresStore) Save(ctx context.Context, e Entry) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO mint_ledger (key, campaign, network, address, account, tx_hash, outcome, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (key) DO UPDATE
SET account = EXCLUDED.account,
    tx_hash = EXCLUDED.tx_hash,
    outcome = EXCLUDED.outcome,
    created_at = EXCLUDED.created_at
`, e.Key(), e.Campaign, e.Network, e.Address, e.Account, e.TxHash, e.Outcome, e.CreatedAt)
	return err
}
