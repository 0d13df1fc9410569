// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jimd-den/BlackPaper/internal/codec"
	"github.com/jimd-den/BlackPaper/internal/store"

	_ "modernc.org/sqlite"
)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and runs migrations.
// ":memory:" gives an ephemeral cache for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The in-memory database lives per-connection, so a second pooled
	// connection would see an empty schema.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		pubkey TEXT NOT NULL,
		kind INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		content TEXT NOT NULL,
		sig TEXT NOT NULL,
		raw JSON NOT NULL,
		stored_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS event_tags (
		event_id TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (event_id, position),
		FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_events_kind_created ON events(kind, created_at);
	CREATE INDEX IF NOT EXISTS idx_events_pubkey ON events(pubkey);
	CREATE INDEX IF NOT EXISTS idx_event_tags_lookup ON event_tags(name, value);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveEvent inserts or replaces an event and its indexed tags. Events are
// keyed by their content hash, so a re-save of the same id is a no-op apart
// from refreshing the tag index.
func (s *Store) SaveEvent(ctx context.Context, e *codec.Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertEvent(ctx, tx, e, raw); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveEvents stores a batch inside one transaction.
func (s *Store) SaveEvents(ctx context.Context, events []*codec.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", e.ID, err)
		}
		if err := upsertEvent(ctx, tx, e, raw); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertEvent(ctx context.Context, tx *sql.Tx, e *codec.Event, raw []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, pubkey, kind, created_at, content, sig, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET raw = excluded.raw
	`, e.ID, e.PubKey, e.Kind, e.CreatedAt, e.Content, e.Sig, raw)
	if err != nil {
		return fmt.Errorf("failed to upsert event %s: %w", e.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_tags WHERE event_id = ?`, e.ID); err != nil {
		return fmt.Errorf("failed to clear tags for %s: %w", e.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO event_tags (event_id, name, value, position) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare tag statement: %w", err)
	}
	defer stmt.Close()

	for i, tag := range e.Tags {
		if len(tag) < 2 {
			continue
		}
		if _, err := stmt.ExecContext(ctx, e.ID, tag[0], tag[1], i); err != nil {
			return fmt.Errorf("failed to insert tag for %s: %w", e.ID, err)
		}
	}
	return nil
}

// GetEvent retrieves a single event by id. Missing events return (nil, nil).
func (s *Store) GetEvent(ctx context.Context, id string) (*codec.Event, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT raw FROM events WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}

	e := &codec.Event{}
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event %s: %w", id, err)
	}
	return e, nil
}

// QueryEvents returns cached events matching the filter, newest first.
func (s *Store) QueryEvents(ctx context.Context, f codec.Filter) ([]*codec.Event, error) {
	query := `SELECT raw FROM events e`
	var conds []string
	var args []any

	if len(f.IDs) > 0 {
		conds = append(conds, `e.id IN (`+placeholders(len(f.IDs))+`)`)
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if len(f.Authors) > 0 {
		conds = append(conds, `e.pubkey IN (`+placeholders(len(f.Authors))+`)`)
		for _, a := range f.Authors {
			args = append(args, a)
		}
	}
	if len(f.Kinds) > 0 {
		conds = append(conds, `e.kind IN (`+placeholders(len(f.Kinds))+`)`)
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	for name, values := range f.Tags {
		if len(values) == 0 {
			continue
		}
		conds = append(conds, `EXISTS (
			SELECT 1 FROM event_tags t
			WHERE t.event_id = e.id AND t.name = ? AND t.value IN (`+placeholders(len(values))+`)
		)`)
		args = append(args, name)
		for _, v := range values {
			args = append(args, v)
		}
	}
	if f.Since != nil {
		conds = append(conds, `e.created_at >= ?`)
		args = append(args, *f.Since)
	}
	if f.Until != nil {
		conds = append(conds, `e.created_at <= ?`)
		args = append(args, *f.Until)
	}

	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY e.created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return s.scanEvents(ctx, query, args...)
}

// LatestByEntity returns the newest event per identifier tag among events of
// the given kind carrying the given entity tag. Older revisions of the same
// identifier are superseded, matching replaceable-event semantics.
func (s *Store) LatestByEntity(ctx context.Context, kind int, entity string) ([]*codec.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.raw, d.value
		FROM events e
		JOIN event_tags d ON d.event_id = e.id AND d.name = 'd'
		WHERE e.kind = ?
		  AND EXISTS (
			SELECT 1 FROM event_tags t
			WHERE t.event_id = e.id AND t.name = 't' AND t.value = ?
		  )
		ORDER BY e.created_at DESC
	`, kind, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest events: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var events []*codec.Event
	for rows.Next() {
		var raw []byte
		var identifier string
		if err := rows.Scan(&raw, &identifier); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if seen[identifier] {
			continue
		}
		seen[identifier] = true

		e := &codec.Event{}
		if err := json.Unmarshal(raw, e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// VoteTallies counts cached reaction events per target. Reaction content
// follows the wire convention: "-" is a downvote, "+" or empty an upvote,
// anything else is ignored.
func (s *Store) VoteTallies(ctx context.Context, targetEventIDs []string) (map[string]store.VoteTally, error) {
	tallies := make(map[string]store.VoteTally)
	if len(targetEventIDs) == 0 {
		return tallies, nil
	}

	args := []any{codec.KindReaction}
	for _, id := range targetEventIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.value, e.content
		FROM events e
		JOIN event_tags t ON t.event_id = e.id AND t.name = 'e'
		WHERE e.kind = ? AND t.value IN (`+placeholders(len(targetEventIDs))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vote tallies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var target, content string
		if err := rows.Scan(&target, &content); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		tally := tallies[target]
		switch content {
		case "-":
			tally.Downvotes++
		case "+", "":
			tally.Upvotes++
		default:
			continue
		}
		tallies[target] = tally
	}
	return tallies, rows.Err()
}

// ContributionCount counts cached discourse events authored by a key.
func (s *Store) ContributionCount(ctx context.Context, pubkey string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events WHERE pubkey = ? AND kind = ?
	`, pubkey, codec.KindDiscourse).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count contributions: %w", err)
	}
	return n, nil
}

// DeletedEventIDs returns ids referenced by cached deletion events.
func (s *Store) DeletedEventIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.value
		FROM events e
		JOIN event_tags t ON t.event_id = e.id AND t.name = 'e'
		WHERE e.kind = ?
	`, codec.KindDeletion)
	if err != nil {
		return nil, fmt.Errorf("failed to query deletions: %w", err)
	}
	defer rows.Close()

	deleted := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deletion: %w", err)
		}
		deleted[id] = true
	}
	return deleted, rows.Err()
}

func (s *Store) scanEvents(ctx context.Context, query string, args ...any) ([]*codec.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*codec.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e := &codec.Event{}
		if err := json.Unmarshal(raw, e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
