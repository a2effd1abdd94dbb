// Package logging provides categorized file-based logging for chameleon.
// Each category writes to its own file under <data_dir>/logs/. Until
// Initialize is called, every call is a no-op, so library consumers that
// never configure logging pay nothing.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log stream.
type Category string

const (
	CategoryEngine  Category = "engine"  // lifecycle, shutdown, event drops
	CategoryIngest  Category = "ingest"  // session ingestion
	CategoryAdapt   Category = "adapt"   // gate decisions, applied adaptations
	CategoryPattern Category = "pattern" // pattern detector findings
	CategoryPredict Category = "predict" // monitoring tick, forecasts
	CategoryAlert   Category = "alert"   // threshold breaches
	CategoryPersist Category = "persist" // snapshot load/flush
)

// Logger writes one category's stream.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu      sync.RWMutex
	loggers = map[Category]*Logger{}
	logsDir string
	debug   bool
	ready   bool
)

// Initialize opens the logs directory and enables logging. debugMode also
// enables the *Debug variants.
func Initialize(dataDir string, debugMode bool) error {
	if dataDir == "" {
		return fmt.Errorf("data directory required")
	}
	dir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	logsDir = dir
	debug = debugMode
	ready = true
	return nil
}

// Close flushes and closes all category files. Safe to call more than once.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = map[Category]*Logger{}
	ready = false
}

// Get returns the logger for a category, creating its file on first use.
// Returns nil when logging is not initialized.
func Get(category Category) *Logger {
	mu.RLock()
	l, ok := loggers[category]
	enabled := ready
	mu.RUnlock()
	if !enabled {
		return nil
	}
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	path := filepath.Join(logsDir, string(category)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		// Degrade to stderr rather than dropping the stream.
		l = &Logger{category: category, logger: log.New(os.Stderr, "", 0)}
	} else {
		l = &Logger{category: category, logger: log.New(f, "", 0), file: f}
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level, format string, args ...interface{}) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("%s [%s] %s: %s",
		time.Now().Format(time.RFC3339), level, l.category, msg)
}

// Info writes an info-level line.
func (l *Logger) Info(format string, args ...interface{}) { l.write("INFO", format, args...) }

// Warn writes a warn-level line.
func (l *Logger) Warn(format string, args ...interface{}) { l.write("WARN", format, args...) }

// Debug writes a debug-level line when debug mode is on.
func (l *Logger) Debug(format string, args ...interface{}) {
	mu.RLock()
	d := debug
	mu.RUnlock()
	if d {
		l.write("DEBUG", format, args...)
	}
}

// Convenience functions per category.

func Engine(format string, args ...interface{})       { Get(CategoryEngine).Info(format, args...) }
func EngineDebug(format string, args ...interface{})  { Get(CategoryEngine).Debug(format, args...) }
func Ingest(format string, args ...interface{})       { Get(CategoryIngest).Info(format, args...) }
func IngestDebug(format string, args ...interface{})  { Get(CategoryIngest).Debug(format, args...) }
func Adapt(format string, args ...interface{})        { Get(CategoryAdapt).Info(format, args...) }
func AdaptDebug(format string, args ...interface{})   { Get(CategoryAdapt).Debug(format, args...) }
func Pattern(format string, args ...interface{})      { Get(CategoryPattern).Info(format, args...) }
func PatternDebug(format string, args ...interface{}) { Get(CategoryPattern).Debug(format, args...) }
func Predict(format string, args ...interface{})      { Get(CategoryPredict).Info(format, args...) }
func Alert(format string, args ...interface{})        { Get(CategoryAlert).Info(format, args...) }
func Persist(format string, args ...interface{})      { Get(CategoryPersist).Info(format, args...) }
