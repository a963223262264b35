/*
Package sqlite provides the SQLite-backed implementation of the ledger
store and the catalog.

PURPOSE:
  Implements ledger.Store (events, snapshots, sequence counter) and the
  catalog interfaces (products, price rules, stamp activities) on one
  database file. In production the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  order_events has no UPDATE and no DELETE statements anywhere in this
  package. Snapshots are derived state and are upserted.

SEQUENCE COUNTER:
  A single persisted counter row (sequence_counter) is incremented
  inside the same transaction as the event append, so counter and event
  durability are coupled. A crash before commit rolls the increment
  back with everything else; committed sequences are gapless.

KEY TABLES:
  sequence_counter:  the one-row global event sequence
  order_events:      immutable ledger, keyed by sequence
  order_snapshots:   current-state projections, keyed by order id
  products:          catalog metadata
  price_rules:       price rule definitions
  stamp_activities:  stamp campaign definitions

CONCURRENCY:
  A store-level mutex is taken for the lifetime of each write
  transaction, making command execution single-writer. Readers share an
  RWMutex and only contend on SQL, never on command application.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/edge.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mesa/pos-edge/catalog"
	"github.com/mesa/pos-edge/ledger"
	"github.com/mesa/pos-edge/pricing"
)

// Store implements ledger.Store, catalog.Catalog and catalog.Admin.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex   // held for the lifetime of one write transaction
	mu      sync.RWMutex // read-side consistency
}

// New opens (and migrates) a store at the given path. Use ":memory:"
// for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- The one-row global sequence counter. Updated only inside write
	-- transactions so counter and event durability are coupled.
	CREATE TABLE IF NOT EXISTS sequence_counter (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO sequence_counter (id, value) VALUES (1, 0);

	-- Order events (append-only ledger)
	CREATE TABLE IF NOT EXISTS order_events (
		sequence INTEGER PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		order_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		command_id TEXT,
		operator_id TEXT,
		operator_name TEXT,
		at TEXT NOT NULL,
		client_at TEXT,
		payload_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_order_events_order
		ON order_events(order_id, sequence);
	CREATE INDEX IF NOT EXISTS idx_order_events_type
		ON order_events(event_type);

	-- Order snapshots (derived state, rebuildable from events)
	CREATE TABLE IF NOT EXISTS order_snapshots (
		order_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		last_sequence INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		snapshot_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_order_snapshots_status
		ON order_snapshots(status);

	-- Catalog: products
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		product_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Catalog: price rules
	CREATE TABLE IF NOT EXISTS price_rules (
		id TEXT PRIMARY KEY,
		rule_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Catalog: stamp activities
	CREATE TABLE IF NOT EXISTS stamp_activities (
		id TEXT PRIMARY KEY,
		activity_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITE TRANSACTION (ledger.WriteTx)
// =============================================================================

// BeginWrite opens the single write transaction. The store-level write
// mutex is held until Commit or Rollback.
func (s *Store) BeginWrite(ctx context.Context) (ledger.WriteTx, error) {
	s.writeMu.Lock()
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &writeTx{parent: s, tx: sqlTx}, nil
}

type writeTx struct {
	parent *Store
	tx     *sql.Tx
	done   bool
}

func (w *writeTx) NextSequence(ctx context.Context) (uint64, error) {
	if _, err := w.tx.ExecContext(ctx,
		"UPDATE sequence_counter SET value = value + 1 WHERE id = 1"); err != nil {
		return 0, fmt.Errorf("failed to advance sequence: %w", err)
	}
	var seq uint64
	if err := w.tx.QueryRowContext(ctx,
		"SELECT value FROM sequence_counter WHERE id = 1").Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}
	return seq, nil
}

func (w *writeTx) LoadSnapshot(ctx context.Context, orderID string) (*ledger.OrderSnapshot, error) {
	return scanSnapshot(w.tx.QueryRowContext(ctx,
		"SELECT snapshot_json FROM order_snapshots WHERE order_id = ?", orderID))
}

func (w *writeTx) StoreSnapshot(ctx context.Context, snap *ledger.OrderSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO order_snapshots (order_id, status, last_sequence, updated_at, snapshot_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status,
			last_sequence = excluded.last_sequence,
			updated_at = excluded.updated_at,
			snapshot_json = excluded.snapshot_json
	`
	_, err = w.tx.ExecContext(ctx, query,
		snap.OrderID, snap.Status, snap.LastSequence,
		snap.UpdatedAt.Format(time.RFC3339Nano), string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

func (w *writeTx) AppendEvent(ctx context.Context, e ledger.OrderEvent) error {
	payload, err := ledger.EncodePayload(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	var clientAt *string
	if e.ClientAt != nil {
		t := e.ClientAt.Format(time.RFC3339Nano)
		clientAt = &t
	}

	query := `
		INSERT INTO order_events
		(sequence, event_id, order_id, event_type, command_id, operator_id, operator_name, at, client_at, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = w.tx.ExecContext(ctx, query,
		e.Sequence, e.EventID, e.OrderID, e.Type, e.CommandID,
		e.OperatorID, e.OperatorName,
		e.At.Format(time.RFC3339Nano), clientAt, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (w *writeTx) Commit() error {
	if w.done {
		return nil
	}
	w.done = true
	defer w.parent.writeMu.Unlock()

	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (w *writeTx) Rollback() error {
	if w.done {
		return nil
	}
	w.done = true
	defer w.parent.writeMu.Unlock()
	return w.tx.Rollback()
}

// =============================================================================
// READ SIDE (ledger.Store)
// =============================================================================

func (s *Store) LoadSnapshot(ctx context.Context, orderID string) (*ledger.OrderSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanSnapshot(s.db.QueryRowContext(ctx,
		"SELECT snapshot_json FROM order_snapshots WHERE order_id = ?", orderID))
}

func (s *Store) ActiveSnapshots(ctx context.Context) ([]ledger.OrderSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT snapshot_json FROM order_snapshots WHERE status = ? ORDER BY order_id",
		ledger.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []ledger.OrderSnapshot
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var snap ledger.OrderSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) EventsSince(ctx context.Context, since uint64, limit int) ([]ledger.OrderEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT sequence, event_id, order_id, event_type, command_id, operator_id, operator_name, at, client_at, payload_json
		FROM order_events
		WHERE sequence > ?
		ORDER BY sequence ASC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1 // SQLite treats a negative limit as unlimited
	}
	return s.queryEvents(ctx, query, since, limit)
}

func (s *Store) EventsForOrder(ctx context.Context, orderID string) ([]ledger.OrderEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT sequence, event_id, order_id, event_type, command_id, operator_id, operator_name, at, client_at, payload_json
		FROM order_events
		WHERE order_id = ?
		ORDER BY sequence ASC
	`
	return s.queryEvents(ctx, query, orderID)
}

func (s *Store) CurrentSequence(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var seq uint64
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM sequence_counter WHERE id = 1").Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}
	return seq, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]ledger.OrderEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []ledger.OrderEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (ledger.OrderEvent, error) {
	var (
		e            ledger.OrderEvent
		commandID    sql.NullString
		operatorID   sql.NullString
		operatorName sql.NullString
		at           string
		clientAt     sql.NullString
		payloadJSON  string
	)

	err := rows.Scan(&e.Sequence, &e.EventID, &e.OrderID, &e.Type,
		&commandID, &operatorID, &operatorName, &at, &clientAt, &payloadJSON)
	if err != nil {
		return e, fmt.Errorf("failed to scan event: %w", err)
	}

	e.CommandID = commandID.String
	e.OperatorID = operatorID.String
	e.OperatorName = operatorName.String
	e.At, err = time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return e, fmt.Errorf("failed to parse event timestamp: %w", err)
	}
	if clientAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, clientAt.String)
		if err != nil {
			return e, fmt.Errorf("failed to parse client timestamp: %w", err)
		}
		e.ClientAt = &t
	}

	payload, err := ledger.DecodePayload(e.Type, []byte(payloadJSON))
	if err != nil {
		return e, err
	}
	e.Payload = payload
	return e, nil
}

func scanSnapshot(row *sql.Row) (*ledger.OrderSnapshot, error) {
	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	var snap ledger.OrderSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// =============================================================================
// CATALOG (catalog.Catalog + catalog.Admin)
// =============================================================================

func (s *Store) Product(ctx context.Context, id string) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT product_json FROM products WHERE id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	var p catalog.Product
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	return &p, nil
}

func (s *Store) SaveProduct(ctx context.Context, p catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (id, name, product_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			product_json = excluded.product_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.Name, string(raw), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT product_json FROM products ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var p catalog.Product
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ActiveRules(ctx context.Context, at time.Time) ([]pricing.PriceRule, error) {
	rules, err := s.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	var out []pricing.PriceRule
	for _, r := range rules {
		if r.ActiveAt(at) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) SaveRule(ctx context.Context, r pricing.PriceRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO price_rules (id, rule_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rule_json = excluded.rule_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, string(raw), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) ListRules(ctx context.Context) ([]pricing.PriceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT rule_json FROM price_rules ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pricing.PriceRule
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r pricing.PriceRule
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Activity(ctx context.Context, id string) (*catalog.StampActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT activity_json FROM stamp_activities WHERE id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrActivityNotFound
	}
	if err != nil {
		return nil, err
	}

	var a catalog.StampActivity
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activity: %w", err)
	}
	return &a, nil
}

func (s *Store) ActiveActivities(ctx context.Context, at time.Time) ([]catalog.StampActivity, error) {
	activities, err := s.ListActivities(ctx)
	if err != nil {
		return nil, err
	}
	var out []catalog.StampActivity
	for _, a := range activities {
		if a.ActiveAt(at) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) SaveActivity(ctx context.Context, a catalog.StampActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO stamp_activities (id, activity_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			activity_json = excluded.activity_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		a.ID, string(raw), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) ListActivities(ctx context.Context) ([]catalog.StampActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT activity_json FROM stamp_activities ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.StampActivity
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var a catalog.StampActivity
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
