package wlparser

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteSink stores one JSON report per folder label.
type SQLiteSink struct {
	DB        *sql.DB
	TableName string
}

// NewSQLiteSink creates a SQLite sink.
func NewSQLiteSink(db *sql.DB, tableName string) *SQLiteSink {
	if tableName == "" {
		tableName = "wlparser_reports"
	}
	return &SQLiteSink{DB: db, TableName: tableName}
}

// Setup creates the report table.
func (s *SQLiteSink) Setup(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("sqlite sink requires DB")
	}
	if err := s.applyPragmas(ctx); err != nil {
		return err
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (label TEXT PRIMARY KEY, shape TEXT NOT NULL, failed INTEGER NOT NULL DEFAULT 0, data TEXT NOT NULL DEFAULT '{}');`, s.TableName)
	_, err := s.DB.ExecContext(ctx, query)
	return err
}

func (s *SQLiteSink) Description() string {
	return fmt.Sprintf("SQLiteSink(%s)", s.TableName)
}

// Put upserts reports by label in a single transaction.
func (s *SQLiteSink) Put(ctx context.Context, reports []Report) error {
	if len(reports) == 0 {
		return nil
	}
	if s.DB == nil {
		return fmt.Errorf("sqlite sink requires DB")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := fmt.Sprintf(
		"INSERT INTO %s (label, shape, failed, data) VALUES (?, ?, ?, json(?)) ON CONFLICT (label) DO UPDATE SET shape = excluded.shape, failed = excluded.failed, data = excluded.data;",
		s.TableName,
	)
	for _, r := range dedupeReports(reports) {
		data, err := encodeReport(r)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, r.Label, r.Shape, r.Failed, data); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get fetches reports in label order.
func (s *SQLiteSink) Get(ctx context.Context, labels []string) ([]*Report, error) {
	if len(labels) == 0 {
		return []*Report{}, nil
	}
	query, args := buildLabelQuery(s.TableName, labels, func(int) string { return "?" })
	return queryReports(ctx, s.DB, query, args, labels)
}

func (s *SQLiteSink) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := s.DB.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// buildLabelQuery selects label and data for labels using the dialect's placeholder.
func buildLabelQuery(table string, labels []string, placeholder func(int) string) (string, []any) {
	marks := make([]string, 0, len(labels))
	args := make([]any, 0, len(labels))
	for i, label := range labels {
		marks = append(marks, placeholder(i+1))
		args = append(args, label)
	}
	return fmt.Sprintf("SELECT label, data FROM %s WHERE label IN (%s);", table, strings.Join(marks, ", ")), args
}

func queryReports(ctx context.Context, db *sql.DB, query string, args []any, labels []string) ([]*Report, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := map[string]*Report{}
	for rows.Next() {
		var label string
		var data []byte
		if err := rows.Scan(&label, &data); err != nil {
			return nil, err
		}
		report, err := decodeReport(label, data)
		if err != nil {
			return nil, err
		}
		found[label] = report
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orderReports(labels, found), nil
}
