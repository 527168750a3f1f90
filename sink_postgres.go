package wlparser

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresSink stores reports in a JSONB column keyed by label.
type PostgresSink struct {
	DB        *sql.DB
	TableName string
}

// NewPostgresSink creates a PostgreSQL sink.
func NewPostgresSink(db *sql.DB, tableName string) *PostgresSink {
	if tableName == "" {
		tableName = "wlparser_reports"
	}
	return &PostgresSink{DB: db, TableName: tableName}
}

// Setup creates the report table.
func (s *PostgresSink) Setup(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("postgres sink requires DB")
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (label VARCHAR(255) PRIMARY KEY, shape VARCHAR(64) NOT NULL, failed BOOLEAN NOT NULL DEFAULT FALSE, data JSONB NOT NULL DEFAULT '{}'::jsonb);`, s.TableName)
	_, err := s.DB.ExecContext(ctx, query)
	return err
}

func (s *PostgresSink) Description() string {
	return fmt.Sprintf("PostgresSink(%s)", s.TableName)
}

// Put upserts reports by label in a single transaction.
func (s *PostgresSink) Put(ctx context.Context, reports []Report) error {
	if len(reports) == 0 {
		return nil
	}
	if s.DB == nil {
		return fmt.Errorf("postgres sink requires DB")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := fmt.Sprintf(
		"INSERT INTO %s (label, shape, failed, data) VALUES ($1, $2, $3, $4::jsonb) ON CONFLICT (label) DO UPDATE SET shape = EXCLUDED.shape, failed = EXCLUDED.failed, data = EXCLUDED.data;",
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
func (s *PostgresSink) Get(ctx context.Context, labels []string) ([]*Report, error) {
	if len(labels) == 0 {
		return []*Report{}, nil
	}
	query, args := buildLabelQuery(s.TableName, labels, func(i int) string { return fmt.Sprintf("$%d", i) })
	return queryReports(ctx, s.DB, query, args, labels)
}
