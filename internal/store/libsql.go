package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/renvik/convograph/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
// It backs the editor's local cache: flows load from here when the remote
// source is slow or unreachable, and autosave revisions land here first.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/flows.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies any pending schema steps to the flow cache.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return migrateSchema(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Flows ---

func (s *LibSQLStore) SaveFlow(ctx context.Context, flow *Flow) error {
	if flow.ID == "" {
		return schema.NewError(schema.ErrCodeStore, "flow id is required")
	}
	if len(flow.Document) == 0 {
		return schema.NewError(schema.ErrCodeStore, "flow document is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flows (id, name, version, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, version=excluded.version,
		   document=excluded.document, updated_at=CURRENT_TIMESTAMP`,
		flow.ID, flow.Name, versionOrDefault(flow.Version), string(flow.Document),
		timeOrNow(flow.CreatedAt), timeOrNow(flow.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetFlow(ctx context.Context, id string) (*Flow, error) {
	f := &Flow{}
	var document string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, version, document, created_at, updated_at FROM flows WHERE id = ?`, id,
	).Scan(&f.ID, &f.Name, &f.Version, &document, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("flow", id)
	}
	if err != nil {
		return nil, err
	}
	f.Document = []byte(document)
	return f, nil
}

func (s *LibSQLStore) ListFlows(ctx context.Context, filter FlowFilter) ([]*Flow, error) {
	var where []string
	var args []any

	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Since != nil {
		where = append(where, "updated_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT id, name, version, document, created_at, updated_at FROM flows"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flows []*Flow
	for rows.Next() {
		f := &Flow{}
		var document string
		if err := rows.Scan(&f.ID, &f.Name, &f.Version, &document, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		f.Document = []byte(document)
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

func (s *LibSQLStore) DeleteFlow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "flow", id)
}

// --- Revisions ---

func (s *LibSQLStore) AppendRevision(ctx context.Context, rev *Revision) error {
	if rev.FlowID == "" {
		return schema.NewError(schema.ErrCodeStore, "revision flow_id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Next sequence number for this flow.
	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM revisions WHERE flow_id = ?`, rev.FlowID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next seq: %w", err)
	}
	rev.Seq = seq

	_, err = tx.ExecContext(ctx,
		`INSERT INTO revisions (flow_id, seq, label, document, saved_at) VALUES (?, ?, ?, ?, ?)`,
		rev.FlowID, seq, nullStr(rev.Label), string(rev.Document), timeOrNow(rev.SavedAt),
	)
	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revision: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetRevision(ctx context.Context, flowID string, seq int64) (*Revision, error) {
	r := &Revision{}
	var label sql.NullString
	var document string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, flow_id, seq, label, document, saved_at FROM revisions WHERE flow_id = ? AND seq = ?`,
		flowID, seq,
	).Scan(&r.ID, &r.FlowID, &r.Seq, &label, &document, &r.SavedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("revision", fmt.Sprintf("%s/%d", flowID, seq))
	}
	if err != nil {
		return nil, err
	}
	r.Label = label.String
	r.Document = []byte(document)
	return r, nil
}

func (s *LibSQLStore) ListRevisions(ctx context.Context, flowID string, limit int) ([]*Revision, error) {
	query := `SELECT id, flow_id, seq, label, document, saved_at FROM revisions
	 WHERE flow_id = ? ORDER BY seq DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, flowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revisions []*Revision
	for rows.Next() {
		r := &Revision{}
		var label sql.NullString
		var document string
		if err := rows.Scan(&r.ID, &r.FlowID, &r.Seq, &label, &document, &r.SavedAt); err != nil {
			return nil, err
		}
		r.Label = label.String
		r.Document = []byte(document)
		revisions = append(revisions, r)
	}
	return revisions, rows.Err()
}

// PruneRevisions applies the retention policy across all flows and returns
// the number of revisions deleted.
func (s *LibSQLStore) PruneRevisions(ctx context.Context, policy RetentionPolicy) (int64, error) {
	var deleted int64

	if policy.KeepPerFlow > 0 {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM revisions WHERE id IN (
			   SELECT r.id FROM revisions r
			   WHERE (SELECT COUNT(*) FROM revisions newer
			          WHERE newer.flow_id = r.flow_id AND newer.seq > r.seq) >= ?
			 )`, policy.KeepPerFlow,
		)
		if err != nil {
			return deleted, fmt.Errorf("prune by count: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}

	if policy.MaxAge > 0 {
		cutoff := time.Now().UTC().Add(-policy.MaxAge)
		res, err := s.db.ExecContext(ctx, `DELETE FROM revisions WHERE saved_at < ?`, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("prune by age: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}

	return deleted, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func versionOrDefault(v string) string {
	if v == "" {
		return "1"
	}
	return v
}
