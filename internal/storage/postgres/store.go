package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"deltaHedge/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store persists the pair catalog in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the pairs table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertPairs inserts or updates catalog pairs by id. Registration order of
// existing pairs is preserved.
func (s *Store) UpsertPairs(ctx context.Context, pairs []model.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pairs {
		batch.Queue(`
			INSERT INTO pairs (
				id, chain_id, pool_address,
				token_a_address, token_a_symbol, token_a_name, token_a_decimals,
				token_b_address, token_b_symbol, token_b_name, token_b_decimals,
				tick_spacing, fee_tier, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
			ON CONFLICT (id)
			DO UPDATE SET
				chain_id = EXCLUDED.chain_id,
				pool_address = EXCLUDED.pool_address,
				token_a_address = EXCLUDED.token_a_address,
				token_a_symbol = EXCLUDED.token_a_symbol,
				token_a_name = EXCLUDED.token_a_name,
				token_a_decimals = EXCLUDED.token_a_decimals,
				token_b_address = EXCLUDED.token_b_address,
				token_b_symbol = EXCLUDED.token_b_symbol,
				token_b_name = EXCLUDED.token_b_name,
				token_b_decimals = EXCLUDED.token_b_decimals,
				tick_spacing = EXCLUDED.tick_spacing,
				fee_tier = EXCLUDED.fee_tier,
				updated_at = now()
		`,
			p.ID,
			int64(p.ChainID),
			p.PoolAddress,
			p.TokenA.Address,
			p.TokenA.Symbol,
			p.TokenA.Name,
			int16(p.TokenA.Decimals),
			p.TokenB.Address,
			p.TokenB.Symbol,
			p.TokenB.Name,
			int16(p.TokenB.Decimals),
			p.TickSpacing,
			int64(p.FeeTier),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, p := range pairs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert pair %s: %w", p.ID, err)
		}
	}
	return nil
}

// LoadPairs returns every catalog pair in registration order.
func (s *Store) LoadPairs(ctx context.Context) ([]model.Pair, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chain_id, pool_address,
			token_a_address, token_a_symbol, token_a_name, token_a_decimals,
			token_b_address, token_b_symbol, token_b_name, token_b_decimals,
			tick_spacing, fee_tier
		FROM pairs
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("query pairs: %w", err)
	}
	defer rows.Close()

	var pairs []model.Pair
	for rows.Next() {
		var (
			p                    model.Pair
			chainID, feeTier     int64
			decimalsA, decimalsB int16
		)
		if err := rows.Scan(
			&p.ID, &chainID, &p.PoolAddress,
			&p.TokenA.Address, &p.TokenA.Symbol, &p.TokenA.Name, &decimalsA,
			&p.TokenB.Address, &p.TokenB.Symbol, &p.TokenB.Name, &decimalsB,
			&p.TickSpacing, &feeTier,
		); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		p.ChainID = uint64(chainID)
		p.TokenA.Decimals = uint8(decimalsA)
		p.TokenB.Decimals = uint8(decimalsB)
		p.FeeTier = uint32(feeTier)
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pairs: %w", err)
	}
	return pairs, nil
}
