package db

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL is compiled into the binary at build time.
// This ensures schema init works inside the Docker runtime image which
// does not copy internal/db/schema.sql into the final stage.
//
//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for Intent Engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	_, err := s.pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Intent Engine Audit Schema initialized")
	return nil
}

// BuildRecord is one row of the build audit trail.
type BuildRecord struct {
	ID         string  `json:"id"`
	Prompt     string  `json:"prompt,omitempty"`
	Intent     string  `json:"intent"`
	Protocol   string  `json:"protocol,omitempty"`
	Network    string  `json:"network"`
	Payer      string  `json:"payer"`
	Confidence float64 `json:"confidence,omitempty"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
	CreatedAt  string  `json:"createdAt"`
}

// SaveBuild upserts one build outcome. Re-running a build id (retries,
// at-least-once callers) overwrites the old outcome rather than duplicating.
func (s *PostgresStore) SaveBuild(ctx context.Context, rec BuildRecord) error {
	sql := `
		INSERT INTO build_history
			(id, prompt, intent, protocol, network, payer, confidence, success, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			success = EXCLUDED.success,
			error = EXCLUDED.error,
			created_at = NOW();
	`
	_, err := s.pool.Exec(ctx, sql,
		rec.ID, rec.Prompt, rec.Intent, rec.Protocol, rec.Network,
		rec.Payer, rec.Confidence, rec.Success, rec.Error)
	if err != nil {
		return fmt.Errorf("failed to insert build_history: %v", err)
	}
	return nil
}

// SaveParseEvent records how one prompt segment was recognized, keyed by
// source: pattern, learned, llm or fallback.
func (s *PostgresStore) SaveParseEvent(ctx context.Context, prompt, source, protocol, action string, confidence float64) error {
	sql := `
		INSERT INTO parse_events (prompt, source, protocol, action, confidence)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := s.pool.Exec(ctx, sql, prompt, source, protocol, action, confidence)
	if err != nil {
		return fmt.Errorf("failed to insert parse_event: %v", err)
	}
	return nil
}

// RecentBuilds returns the newest build records, newest first.
func (s *PostgresStore) RecentBuilds(ctx context.Context, limit int) ([]BuildRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	sql := `
		SELECT id, prompt, intent, protocol, network, payer, confidence, success, error, created_at
		FROM build_history
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]BuildRecord, 0, limit)
	for rows.Next() {
		var rec BuildRecord
		var createdAt time.Time
		if err := rows.Scan(&rec.ID, &rec.Prompt, &rec.Intent, &rec.Protocol, &rec.Network,
			&rec.Payer, &rec.Confidence, &rec.Success, &rec.Error, &createdAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ParseSourceCounts aggregates parse events by recognition source, for the
// health endpoint.
func (s *PostgresStore) ParseSourceCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT source, COUNT(*) FROM parse_events GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		counts[source] = n
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}
