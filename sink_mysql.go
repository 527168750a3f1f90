package wlparser

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLSink stores reports in a JSON column keyed by label.
type MySQLSink struct {
	DB        *sql.DB
	TableName string
}

// NewMySQLSink creates a MySQL sink.
func NewMySQLSink(db *sql.DB, tableName string) *MySQLSink {
	if tableName == "" {
		tableName = "wlparser_reports"
	}
	return &MySQLSink{DB: db, TableName: tableName}
}

// Setup creates the report table.
func (s *MySQLSink) Setup(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("mysql sink requires DB")
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (`label` VARCHAR(255) PRIMARY KEY, `shape` VARCHAR(64) NOT NULL, `failed` BOOLEAN NOT NULL DEFAULT FALSE, `data` JSON NOT NULL);", quoteMySQLIdentifier(s.TableName))
	_, err := s.DB.ExecContext(ctx, query)
	return err
}

func (s *MySQLSink) Description() string {
	return fmt.Sprintf("MySQLSink(%s)", s.TableName)
}

// Put upserts reports by label in a single transaction.
func (s *MySQLSink) Put(ctx context.Context, reports []Report) error {
	if len(reports) == 0 {
		return nil
	}
	if s.DB == nil {
		return fmt.Errorf("mysql sink requires DB")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := fmt.Sprintf(
		"INSERT INTO %s (`label`, `shape`, `failed`, `data`) VALUES (?, ?, ?, CAST(? AS JSON)) ON DUPLICATE KEY UPDATE `shape` = VALUES(`shape`), `failed` = VALUES(`failed`), `data` = VALUES(`data`);",
		quoteMySQLIdentifier(s.TableName),
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
func (s *MySQLSink) Get(ctx context.Context, labels []string) ([]*Report, error) {
	if len(labels) == 0 {
		return []*Report{}, nil
	}
	query, args := buildLabelQuery(quoteMySQLIdentifier(s.TableName), labels, func(int) string { return "?" })
	return queryReports(ctx, s.DB, query, args, labels)
}

func quoteMySQLIdentifier(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "`", "``")
	return "`" + escaped + "`"
}
