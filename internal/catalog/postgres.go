package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the catalog_entries table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS catalog_entries (
    id          SERIAL PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    link        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    position    INT  NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_catalog_entries_position ON catalog_entries(position);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity. It backs the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("catalog: ping: %w", err)
	}
	return nil
}

// Search implements [Lookup.Search]. The score is computed in SQL as the
// number of topic patterns the name matches.
func (s *PostgresStore) Search(ctx context.Context, topics []string, limit int) ([]Match, error) {
	topics = NormalizeTopics(topics)
	if len(topics) == 0 {
		return nil, nil
	}
	patterns := likePatterns(topics)

	var lim *int
	if limit > 0 {
		lim = &limit
	}

	const query = `
		SELECT name, link, description, score FROM (
			SELECT name, link, description, position,
			       (SELECT count(*) FROM unnest($1::text[]) AS p(pattern)
			        WHERE name ILIKE p.pattern)::int AS score
			FROM catalog_entries
			WHERE name ILIKE ANY($1::text[])
		) ranked
		ORDER BY score DESC, position, name
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, patterns, lim)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Entry.Name, &m.Entry.URL, &m.Entry.Description, &m.Score); err != nil {
			return nil, fmt.Errorf("catalog: search scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: search rows: %w", err)
	}
	return out, nil
}

// All implements [Store.All].
func (s *PostgresStore) All(ctx context.Context) ([]Entry, error) {
	const query = `SELECT name, link, description FROM catalog_entries ORDER BY position, name`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.URL, &e.Description); err != nil {
			return nil, fmt.Errorf("catalog: list scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list rows: %w", err)
	}
	return out, nil
}

// Replace implements [Store.Replace]. Entries are upserted by name with their
// slice index as position, then rows not in entries are deleted. Both steps
// run in one transaction, so a failure leaves the previous catalog intact.
func (s *PostgresStore) Replace(ctx context.Context, entries []Entry) error {
	if err := ValidateEntries(entries); err != nil {
		return err
	}

	const upsert = `
		INSERT INTO catalog_entries (name, link, description, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			link = EXCLUDED.link,
			description = EXCLUDED.description,
			position = EXCLUDED.position`
	const prune = `DELETE FROM catalog_entries WHERE NOT (name = ANY($1::text[]))`

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name
			if _, err := tx.Exec(ctx, upsert, e.Name, e.URL, e.Description, i); err != nil {
				return fmt.Errorf("upsert %q: %w", e.Name, err)
			}
		}
		if _, err := tx.Exec(ctx, prune, names); err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("catalog: replace: %w", err)
	}
	return nil
}

// likePatterns wraps each topic in % wildcards after escaping LIKE
// metacharacters.
func likePatterns(topics []string) []string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = "%" + r.Replace(t) + "%"
	}
	return out
}
