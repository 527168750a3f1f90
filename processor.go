package wlparser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// FolderResult is the outcome of processing one workload folder.
type FolderResult struct {
	Dir      string          `json:"dir"`
	Label    string          `json:"label"`
	Prefix   string          `json:"prefix,omitempty"`
	Shape    DatasetShape    `json:"shape"`
	Sentinel SentinelResult  `json:"sentinel"`
	Record   *WorkloadRecord `json:"record"`
	Warnings []string        `json:"warnings,omitempty"`
	Failed   bool            `json:"failed"`
	Error    string          `json:"error,omitempty"`
	Err      error           `json:"-"`
}

// Processor runs classification and extraction for workload folders.
type Processor struct {
	cfg    *Config
	logger *slog.Logger
	power  *PowerExtractor
}

// NewProcessor returns a processor for cfg. A nil cfg uses DefaultConfig.
func NewProcessor(cfg *Config) *Processor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Processor{
		cfg:    cfg,
		logger: cfg.logger().With(slog.String("component", "processor")),
		power:  NewPowerExtractor(cfg),
	}
}

// folderRun accumulates state while one folder is processed.
type folderRun struct {
	res       FolderResult
	logger    *slog.Logger
	attempted int
	unread    int
}

func (r *folderRun) warn(msg string) {
	r.res.Warnings = append(r.res.Warnings, msg)
	r.logger.Warn(msg)
}

func (r *folderRun) read(path string) ([]byte, bool) {
	r.attempted++
	data, err := os.ReadFile(path)
	if err != nil {
		r.unread++
		r.warn((&UnreadableFileError{Path: path, Err: err}).Error())
		return nil, false
	}
	return data, true
}

// ProcessFolder classifies dir, runs the extractors its shape calls for, and
// merges their output. Errors are reported on the result, never returned.
func (p *Processor) ProcessFolder(ctx context.Context, dir string) FolderResult {
	run := &folderRun{
		res: FolderResult{
			Dir:    dir,
			Label:  FolderLabel(p.cfg.LabelRoot, dir),
			Record: NewWorkloadRecord(),
		},
		logger: p.logger.With(slog.String("folder", dir)),
	}
	res := p.process(ctx, run)
	p.cfg.Metrics.observe(res)
	return res
}

func (p *Processor) process(ctx context.Context, run *folderRun) FolderResult {
	started := time.Now()
	dir := run.res.Dir
	if err := ctx.Err(); err != nil {
		return p.fail(run, err)
	}
	run.logger.Info("processing folder")

	inv, err := ScanInventory(dir)
	if err != nil {
		return p.fail(run, err)
	}

	ext := p.cfg.traceExt()
	prefixes := WorkloadPrefixesExt(inv, ext)
	if len(prefixes) > 0 {
		run.res.Prefix = prefixes[0]
	}
	if len(prefixes) > 1 {
		run.warn(fmt.Sprintf("multiple workload prefixes %v; using %q", prefixes, run.res.Prefix))
	}
	run.res.Shape = ClassifyExt(inv, run.res.Prefix, ext)
	if run.res.Shape == Unrecognized {
		run.warn(fmt.Sprintf("unrecognized trace companion set for prefix %q", run.res.Prefix))
	}

	power := p.extractPower(run, inv)

	summary, err := p.extractSummary(run, inv)
	if err != nil {
		return p.fail(run, err)
	}

	run.res.Sentinel = DetectSentinel(inv, dir)
	sentinel := run.res.Sentinel.Extraction()
	for _, w := range sentinel.Warnings {
		run.warn(w)
	}

	if run.attempted > 0 && run.unread == run.attempted {
		return p.fail(run, fmt.Errorf("wlparser: no readable files in %s", dir))
	}

	record, err := Merge(power, summary, sentinel.Records)
	if err != nil {
		return p.fail(run, err)
	}
	run.res.Record = record

	run.logger.Info("processed folder",
		slog.String("shape", run.res.Shape.String()),
		slog.Int("records", record.Len()),
		slog.Int("warnings", len(run.res.Warnings)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return run.res
}

func (p *Processor) extractPower(run *folderRun, inv FileInventory) []MetricRecord {
	files := PowerSummaries(inv)
	if len(files) == 0 {
		return nil
	}
	if len(files) > 1 {
		run.warn(fmt.Sprintf("multiple power summaries %v; using %q", files, files[0]))
	}

	path := filepath.Join(run.res.Dir, files[0])
	data, ok := run.read(path)
	if !ok {
		return nil
	}
	channels, err := ReadPowerSummary(bytes.NewReader(data), p.power.layout.average)
	if err != nil {
		run.warn(fmt.Sprintf("%s: %v", files[0], err))
		return nil
	}
	out := p.power.FromChannels(channels)
	for _, w := range out.Warnings {
		run.warn(w)
	}
	return out.Records
}

func (p *Processor) extractSummary(run *folderRun, inv FileInventory) ([]MetricRecord, error) {
	kind := SummaryKindFor(run.res.Shape)
	if kind == NoSummary {
		return nil, nil
	}

	files := SummaryCandidates(inv, run.res.Prefix)
	if len(files) == 0 {
		run.warn(fmt.Sprintf("no %s summary found for prefix %q", kind, run.res.Prefix))
		return nil, nil
	}

	extractor := NewSummaryExtractor(kind, p.cfg)
	var records []MetricRecord
	for _, name := range files {
		data, ok := run.read(filepath.Join(run.res.Dir, name))
		if !ok {
			continue
		}
		out, err := extractor.Extract(run.res.Shape, string(stripBOM(data)))
		if err != nil {
			return nil, err
		}
		for _, w := range out.Warnings {
			run.warn(name + ": " + w)
		}
		records = append(records, out.Records...)
	}
	return records, nil
}

func (p *Processor) fail(run *folderRun, err error) FolderResult {
	run.res.Failed = true
	run.res.Err = err
	run.res.Error = err.Error()
	run.res.Record = NewWorkloadRecord()
	run.logger.Error("folder failed", slog.Any("error", err))
	return run.res
}

// ProcessFolders processes dirs concurrently, bounded by Config.Workers.
// Results keep the order of dirs. A failed folder does not stop its siblings.
func (p *Processor) ProcessFolders(ctx context.Context, dirs []string) []FolderResult {
	results := make([]FolderResult, len(dirs))

	var g errgroup.Group
	g.SetLimit(p.cfg.EffectiveWorkers())
	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			results[i] = p.ProcessFolder(ctx, dir)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Store hands the results to the configured sink, through the buffer when
// enabled. Sinks key reports by label, so a batch in which two folders share
// a label is rejected with DuplicateLabelError before anything is written.
func (p *Processor) Store(ctx context.Context, results []FolderResult) error {
	storage := p.cfg.Storage()
	if storage == nil || len(results) == 0 {
		return nil
	}
	if err := checkLabels(results); err != nil {
		return err
	}
	reports := make([]Report, 0, len(results))
	for _, res := range results {
		reports = append(reports, NewReport(res))
	}
	if err := storage.Put(ctx, reports); err != nil {
		return fmt.Errorf("wlparser: store reports: %w", err)
	}
	return nil
}

func checkLabels(results []FolderResult) error {
	seen := make(map[string]string, len(results))
	for _, res := range results {
		if first, ok := seen[res.Label]; ok {
			return &DuplicateLabelError{Label: res.Label, Dirs: []string{first, res.Dir}}
		}
		seen[res.Label] = res.Dir
	}
	return nil
}
