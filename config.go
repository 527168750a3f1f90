package wlparser

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// Default power summary layout.
const (
	DefaultPowerPrefix   = "P_"
	DefaultVoltagePrefix = "V_"
	DefaultCurrentPrefix = "I_"
	DefaultAverageColumn = "Average"
)

// Config holds the parser configuration shared by every folder.
// It is read-only once processing starts.
type Config struct {
	Targets       TargetBundle
	TraceExt      string
	PowerPrefix   string
	VoltagePrefix string
	CurrentPrefix string
	AverageColumn string
	KeySeparator  string
	Workers       int
	Logger        *slog.Logger
	Metrics       *Metrics

	// LabelRoot, when set, makes report labels relative to it.
	LabelRoot string

	Sink            Sink
	BufferEnabled   bool
	BufferDuration  time.Duration
	BufferSize      int
	BufferAggregate bool
	BufferAsync     bool

	bufferMu sync.Mutex
	storage  ReportWriter
	buffer   *Buffer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Targets:         DefaultTargetBundle(),
		TraceExt:        DefaultTraceExt,
		PowerPrefix:     DefaultPowerPrefix,
		VoltagePrefix:   DefaultVoltagePrefix,
		CurrentPrefix:   DefaultCurrentPrefix,
		AverageColumn:   DefaultAverageColumn,
		KeySeparator:    DefaultKeySeparator,
		Workers:         4,
		BufferEnabled:   true,
		BufferDuration:  time.Second,
		BufferSize:      64,
		BufferAggregate: true,
		BufferAsync:     true,
	}
}

func (c *Config) traceExt() string {
	if c == nil || c.TraceExt == "" {
		return DefaultTraceExt
	}
	return c.TraceExt
}

func (c *Config) keySeparator() string {
	if c == nil || c.KeySeparator == "" {
		return DefaultKeySeparator
	}
	return c.KeySeparator
}

func (c *Config) powerLayout() powerLayout {
	layout := powerLayout{
		power:   DefaultPowerPrefix,
		voltage: DefaultVoltagePrefix,
		current: DefaultCurrentPrefix,
		average: DefaultAverageColumn,
	}
	if c == nil {
		return layout
	}
	if c.PowerPrefix != "" {
		layout.power = c.PowerPrefix
	}
	if c.VoltagePrefix != "" {
		layout.voltage = c.VoltagePrefix
	}
	if c.CurrentPrefix != "" {
		layout.current = c.CurrentPrefix
	}
	if c.AverageColumn != "" {
		layout.average = c.AverageColumn
	}
	return layout
}

// EffectiveWorkers returns the folder concurrency limit, at least one.
func (c *Config) EffectiveWorkers() int {
	if c == nil || c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

func (c *Config) logger() *slog.Logger {
	if c == nil || c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

// Storage returns the configured report writer (buffer or raw sink).
func (c *Config) Storage() ReportWriter {
	if c == nil {
		return nil
	}

	c.bufferMu.Lock()
	defer c.bufferMu.Unlock()

	if !c.BufferEnabled {
		c.shutdownBufferLocked()
		if c.Sink == nil {
			return nil
		}
		return c.Sink
	}
	if c.Sink == nil {
		c.shutdownBufferLocked()
		return nil
	}

	if c.buffer != nil && c.buffer.matches(c.Sink, c.BufferDuration, c.BufferSize, c.BufferAggregate, c.BufferAsync) {
		return c.storage
	}

	c.shutdownBufferLocked()
	c.buffer = NewBuffer(c.Sink, BufferOptions{
		Duration:  c.BufferDuration,
		Size:      c.BufferSize,
		Aggregate: c.BufferAggregate,
		Async:     c.BufferAsync,
		Logger:    c.Logger,
	})
	c.storage = c.buffer
	return c.storage
}

// FlushBuffer flushes pending buffered reports.
func (c *Config) FlushBuffer() error {
	if c == nil {
		return nil
	}

	c.bufferMu.Lock()
	buffer := c.buffer
	c.bufferMu.Unlock()
	if buffer == nil {
		return nil
	}
	return buffer.Flush()
}

// ShutdownBuffer flushes and stops the buffer worker.
func (c *Config) ShutdownBuffer() error {
	if c == nil {
		return nil
	}

	c.bufferMu.Lock()
	buffer := c.buffer
	c.buffer = nil
	c.storage = nil
	c.bufferMu.Unlock()
	if buffer == nil {
		return nil
	}
	return buffer.Shutdown()
}

func (c *Config) shutdownBufferLocked() {
	if c.buffer == nil {
		c.storage = nil
		return
	}
	_ = c.buffer.Shutdown()
	c.buffer = nil
	c.storage = nil
}
