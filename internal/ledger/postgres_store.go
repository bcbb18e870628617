package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore persists the audit chain in PostgreSQL. Sequence and
// hash assignment stay with the ledger; this store only reads and
// writes rows.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the audit table. Idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_entries (
			seq        BIGINT PRIMARY KEY,
			id         TEXT NOT NULL,
			ts         TIMESTAMPTZ NOT NULL,
			actor      TEXT NOT NULL,
			action     TEXT NOT NULL,
			resource   TEXT NOT NULL,
			outcome    TEXT NOT NULL,
			summary    JSONB,
			prev_hash  TEXT NOT NULL,
			hash       TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("migrate audit table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, entry Entry) error {
	summary, err := json.Marshal(entry.Summary)
	if err != nil {
		return fmt.Errorf("marshal audit summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (seq, id, ts, actor, action, resource, outcome, summary, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.Seq, entry.ID, entry.Timestamp, entry.Actor, entry.Action,
		entry.Resource, string(entry.Outcome), summary, entry.PrevHash, entry.Hash)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Last(ctx context.Context) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, ts, actor, action, resource, outcome, summary, prev_hash, hash
		FROM audit_entries ORDER BY seq DESC LIMIT 1`)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last audit entry: %w", err)
	}
	return &entry, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT seq, id, ts, actor, action, resource, outcome, summary, prev_hash, hash
		FROM audit_entries WHERE 1=1`
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", clause, len(args))
	}
	if filter.Actor != "" {
		add("actor", filter.Actor)
	}
	if filter.Action != "" {
		add("action", filter.Action)
	}
	if filter.Resource != "" {
		add("resource", filter.Resource)
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND ts <= $%d", len(args))
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		entry   Entry
		outcome string
		summary []byte
		ts      time.Time
	)
	err := row.Scan(&entry.Seq, &entry.ID, &ts, &entry.Actor, &entry.Action,
		&entry.Resource, &outcome, &summary, &entry.PrevHash, &entry.Hash)
	if err != nil {
		return Entry{}, err
	}
	entry.Timestamp = ts.UTC()
	entry.Outcome = Outcome(outcome)
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &entry.Summary); err != nil {
			return Entry{}, fmt.Errorf("decode audit summary: %w", err)
		}
	}
	return entry, nil
}
