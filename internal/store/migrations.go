package store

import (
	"bufio"
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

// The flow cache schema is built from ordered, embedded SQL scripts. Each
// script runs once inside its own transaction; applied versions land in
// schema_version so reopening an existing cache applies nothing.

//go:embed migrations/001_initial_schema.sql
var flowsAndRevisionsSQL string

type schemaStep struct {
	version int
	label   string
	script  string
}

var schemaSteps = []schemaStep{
	{version: 1, label: "flows_and_revisions", script: flowsAndRevisionsSQL},
}

// migrateSchema brings the flow cache database up to the current schema.
func migrateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("ensure schema_version: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, step := range schemaSteps {
		if applied[step.version] {
			continue
		}
		if err := applySchemaStep(ctx, db, step); err != nil {
			return fmt.Errorf("schema step %d (%s): %w", step.version, step.label, err)
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return nil, fmt.Errorf("read schema_version: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func applySchemaStep(ctx context.Context, db *sql.DB, step schemaStep) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range sqlStatements(step.script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, name) VALUES (?, ?)`,
		step.version, step.label); err != nil {
		return err
	}
	return tx.Commit()
}

// sqlStatements drops comment lines from a script and splits the remaining
// code on semicolons. Scripts keep comments on their own lines.
func sqlStatements(script string) []string {
	var code strings.Builder
	sc := bufio.NewScanner(strings.NewReader(script))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		code.WriteString(line)
		code.WriteByte('\n')
	}

	var stmts []string
	for _, part := range strings.Split(code.String(), ";") {
		if s := strings.TrimSpace(part); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
