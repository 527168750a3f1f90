package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	wlparser "github.com/trifle-io/wlparser_go"
)

type parseOptions struct {
	input       string
	targets     string
	daq         string
	traceExt    string
	workers     int
	jsonOut     bool
	metricsFile string

	table       string
	sqlitePath  string
	postgresDSN string
	mysqlDSN    string
	redisAddr   string
	mongoURI    string
	mongoDB     string
}

func newParseCmd(root *rootOptions) *cobra.Command {
	opts := &parseOptions{}
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse every workload folder under a directory",
		Example: `  wlparser parse -i ./results
  wlparser parse -i ./results -d config/daq_targets.json --json
  wlparser parse -i ./results -t targets.yaml --sqlite reports.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := root.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runParse(cmd.Context(), cmd.OutOrStdout(), logger, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "workload data directory")
	flags.StringVarP(&opts.targets, "targets", "t", "", "target bundle file (YAML or JSON)")
	flags.StringVarP(&opts.daq, "daq-config", "d", "", "DAQ power target file; auto-detects P_* rails when unset")
	flags.StringVar(&opts.traceExt, "trace-ext", wlparser.DefaultTraceExt, "extension of trace companion files")
	flags.IntVar(&opts.workers, "workers", 4, "folders processed concurrently")
	flags.BoolVar(&opts.jsonOut, "json", false, "write folder results as JSON")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write prometheus metrics in text format to this file")

	flags.StringVar(&opts.table, "table", "", "table or collection name for the report sink")
	flags.StringVar(&opts.sqlitePath, "sqlite", "", "store reports in this SQLite database")
	flags.StringVar(&opts.postgresDSN, "postgres", "", "store reports in PostgreSQL (DSN)")
	flags.StringVar(&opts.mysqlDSN, "mysql", "", "store reports in MySQL (DSN)")
	flags.StringVar(&opts.redisAddr, "redis", "", "store reports in Redis (host:port)")
	flags.StringVar(&opts.mongoURI, "mongo", "", "store reports in MongoDB (URI)")
	flags.StringVar(&opts.mongoDB, "mongo-db", "wlparser", "MongoDB database name")
	cmd.MarkFlagsMutuallyExclusive("sqlite", "postgres", "mysql", "redis", "mongo")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runParse(ctx context.Context, out io.Writer, logger *slog.Logger, opts *parseOptions) error {
	started := time.Now()
	cfg, err := opts.config(logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	cfg.Metrics, err = wlparser.NewMetrics(reg)
	if err != nil {
		return err
	}

	sink, closeSink, err := opts.openSink(ctx)
	if err != nil {
		return err
	}
	defer closeSink()
	if sink != nil {
		cfg.Sink = sink
		logger.Info("storing reports", slog.String("sink", sink.Description()))
	}

	dirs, err := wlparser.DiscoverFolders(opts.input, cfg.TraceExt)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		logger.Warn("no workload folders found", slog.String("input", opts.input))
	}

	p := wlparser.NewProcessor(cfg)
	results := p.ProcessFolders(ctx, dirs)
	if err := storeResults(ctx, cfg, p, results); err != nil {
		return err
	}

	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	failed := 0
	for _, res := range results {
		if res.Failed {
			failed++
		}
	}
	logger.Info("parse complete",
		slog.Int("folders", len(results)),
		slog.Int("failed", failed),
		slog.Duration("elapsed", time.Since(started)),
	)

	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return writeSummary(out, results)
}

// config assembles the parser configuration from the target files and flags.
func (o *parseOptions) config(logger *slog.Logger) (*wlparser.Config, error) {
	cfg := wlparser.DefaultConfig()
	cfg.Logger = logger
	cfg.TraceExt = o.traceExt
	cfg.LabelRoot = o.input
	if o.workers > 0 {
		cfg.Workers = o.workers
	}

	if o.targets != "" {
		bundle, err := wlparser.LoadTargetBundleFile(o.targets)
		if err != nil {
			return nil, err
		}
		cfg.Targets.Power = bundle.Power
		if bundle.DeviceLink != nil {
			cfg.Targets.DeviceLink = bundle.DeviceLink
		}
		if bundle.SystemTrace != nil {
			cfg.Targets.SystemTrace = bundle.SystemTrace
		}
	}
	if o.daq != "" {
		power, err := wlparser.LoadPowerTargetsFile(o.daq)
		if err != nil {
			return nil, err
		}
		cfg.Targets.Power = power
	}
	return cfg, nil
}

// storeResults writes results to the configured sink and then stops the
// buffer, which flushes whatever is still queued. The buffer is stopped even
// when the store fails so its worker never outlives the sink.
func storeResults(ctx context.Context, cfg *wlparser.Config, p *wlparser.Processor, results []wlparser.FolderResult) (err error) {
	defer func() {
		if flushErr := cfg.ShutdownBuffer(); flushErr != nil {
			err = errors.Join(err, fmt.Errorf("flush reports: %w", flushErr))
		}
	}()
	return p.Store(ctx, results)
}

// openSink connects the selected report sink. A nil sink means results are
// only written to out.
func (o *parseOptions) openSink(ctx context.Context) (wlparser.Sink, func(), error) {
	noop := func() {}

	switch {
	case o.sqlitePath != "":
		db, err := sql.Open("sqlite", o.sqlitePath)
		if err != nil {
			return nil, noop, err
		}
		sink := wlparser.NewSQLiteSink(db, o.table)
		return setupSQLSink(ctx, db, sink.Setup, sink)

	case o.postgresDSN != "":
		db, err := sql.Open("pgx", o.postgresDSN)
		if err != nil {
			return nil, noop, err
		}
		sink := wlparser.NewPostgresSink(db, o.table)
		return setupSQLSink(ctx, db, sink.Setup, sink)

	case o.mysqlDSN != "":
		db, err := sql.Open("mysql", o.mysqlDSN)
		if err != nil {
			return nil, noop, err
		}
		sink := wlparser.NewMySQLSink(db, o.table)
		return setupSQLSink(ctx, db, sink.Setup, sink)

	case o.redisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: o.redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("redis ping: %w", err)
		}
		return wlparser.NewRedisSink(client, o.table), func() { _ = client.Close() }, nil

	case o.mongoURI != "":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(o.mongoURI))
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		name := o.table
		if name == "" {
			name = "reports"
		}
		sink := wlparser.NewMongoSink(client.Database(o.mongoDB).Collection(name))
		if err := sink.Setup(ctx); err != nil {
			closeFn()
			return nil, noop, fmt.Errorf("mongo setup: %w", err)
		}
		return sink, closeFn, nil
	}
	return nil, noop, nil
}

func setupSQLSink(ctx context.Context, db *sql.DB, setup func(context.Context) error, sink wlparser.Sink) (wlparser.Sink, func(), error) {
	if err := setup(ctx); err != nil {
		_ = db.Close()
		return nil, func() {}, errors.Join(fmt.Errorf("%s setup", sink.Description()), err)
	}
	return sink, func() { _ = db.Close() }, nil
}

func writeSummary(out io.Writer, results []wlparser.FolderResult) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FOLDER\tSHAPE\tOUTCOME\tRECORDS\tWARNINGS\tSTATUS")
	for _, res := range results {
		status := "ok"
		if res.Failed {
			status = "failed"
			if res.Error != "" {
				status = "failed: " + res.Error
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			res.Label, res.Shape, res.Sentinel.Outcome, res.Record.Len(), len(res.Warnings), status)
	}
	return tw.Flush()
}
