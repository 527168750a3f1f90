package wlparser

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

type reportArgMatcher struct {
	validate func(Report) bool
}

func (m reportArgMatcher) Match(value sqldriver.Value) bool {
	var raw []byte
	switch node := value.(type) {
	case string:
		raw = []byte(node)
	case []byte:
		raw = node
	default:
		return false
	}

	var decoded Report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return false
	}
	return m.validate(decoded)
}

func TestPostgresSink_SetupCreatesSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock setup failed: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db, "test_reports")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS test_reports .*label VARCHAR\\(255\\) PRIMARY KEY.*data JSONB").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := sink.Setup(context.Background()); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSink_PutUpsertsInTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock setup failed: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db, "test_reports")
	reports := sampleReports()
	upsert := regexp.QuoteMeta("INSERT INTO test_reports (label, shape, failed, data) VALUES ($1, $2, $3, $4::jsonb) ON CONFLICT (label) DO UPDATE")

	mock.ExpectBegin()
	mock.ExpectExec(upsert).
		WithArgs("w1", "device-link-only", false, reportArgMatcher{validate: func(r Report) bool {
			return r.Label == "w1" && len(r.Entries) == 2 && r.Entries[0].Key == "L0 (%)_NVM        PCIe_LPM"
		}}).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(upsert).
		WithArgs("w2", "no-system-trace", false, reportArgMatcher{validate: func(r Report) bool {
			return r.Label == "w2" && len(r.Warnings) == 1
		}}).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := sink.Put(context.Background(), reports); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSink_PutRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock setup failed: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db, "test_reports")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO test_reports").WillReturnError(fmt.Errorf("boom"))
	mock.ExpectRollback()

	if err := sink.Put(context.Background(), sampleReports()[:1]); err == nil {
		t.Fatalf("expected put error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSink_GetReturnsReportsInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock setup failed: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db, "test_reports")
	data, err := json.Marshal(sampleReports()[0])
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT label, data FROM test_reports WHERE label IN ($1, $2);")).
		WithArgs("missing", "w1").
		WillReturnRows(sqlmock.NewRows([]string{"label", "data"}).AddRow("w1", data))

	got, err := sink.Get(context.Background(), []string{"missing", "w1"})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got) != 2 || got[0] != nil || got[1] == nil {
		t.Fatalf("unexpected results: %+v", got)
	}
	if got[1].Outcome != "PASS" || len(got[1].Entries) != 2 {
		t.Fatalf("unexpected report: %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSink_Integration(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres failed: %v", err)
	}

	table := fmt.Sprintf("test_wlparser_pg_%d", time.Now().UnixNano())
	sink := NewPostgresSink(db, table)
	if err := sink.Setup(ctx); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer func() {
		_, _ = db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
	}()

	if err := sink.Put(ctx, sampleReports()); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	got, err := sink.Get(ctx, []string{"w1", "w2"})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got[0] == nil || got[0].Entries[0].Value != "95.2" {
		t.Fatalf("unexpected w1: %+v", got[0])
	}
	if got[1] == nil || got[1].Shape != "no-system-trace" {
		t.Fatalf("unexpected w2: %+v", got[1])
	}
}
