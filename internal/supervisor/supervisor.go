// Package supervisor times units of pipeline work, enforces the pipeline's
// runtime ceiling, and keeps a bounded operational log of what ran.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

const (
	// DefaultMaxEntries bounds the operational log when Config.MaxEntries is zero.
	DefaultMaxEntries = 1000

	// DefaultMaxRuntime is the pipeline ceiling used when none is given.
	DefaultMaxRuntime = 20 * time.Second
)

// ErrDeadlineExceeded is matched by every DeadlineError.
var ErrDeadlineExceeded = errors.New("exceeded maximum runtime")

// DeadlineError reports a run that passed its runtime ceiling.
type DeadlineError struct {
	Elapsed time.Duration
	Max     time.Duration
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("exceeded maximum runtime: %dms elapsed, limit %dms", e.Elapsed.Milliseconds(), e.Max.Milliseconds())
}

func (e *DeadlineError) Is(target error) bool {
	return target == ErrDeadlineExceeded
}

// Metadata is free-form context attached to a log entry.
type Metadata map[string]any

// Entry is one operation in the log. EndTime is nil while the operation is open.
type Entry struct {
	Operation  string     `json:"operation"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	DurationMs *int64     `json:"durationMs,omitempty"`
	Success    bool       `json:"success"`
	Error      string     `json:"error,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`
}

// Open reports whether the entry has not been ended.
func (e Entry) Open() bool {
	return e.EndTime == nil
}

// Summary aggregates completed entries.
type Summary struct {
	Total             int     `json:"total"`
	Successful        int     `json:"successful"`
	Failed            int     `json:"failed"`
	AverageDurationMs float64 `json:"averageDurationMs"`
	MaxDurationMs     int64   `json:"maxDurationMs"`
	Retries           int     `json:"retries"`
	Open              int     `json:"open"`
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Config configures a Supervisor. Zero values select the defaults.
type Config struct {
	MaxEntries int
	Clock      Clock
	Metrics    *Metrics
}

// Supervisor is safe for concurrent use. Runs that share one Supervisor share
// one log; matching End to Start is by operation name only.
type Supervisor struct {
	mu         sync.Mutex
	entries    []*Entry
	open       map[string][]*Entry
	retries    map[string]int
	maxEntries int
	clock      Clock
	metrics    *Metrics
}

// New creates a Supervisor.
func New(cfg Config) *Supervisor {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	return &Supervisor{
		open:       make(map[string][]*Entry),
		retries:    make(map[string]int),
		maxEntries: cfg.MaxEntries,
		clock:      cfg.Clock,
		metrics:    cfg.Metrics,
	}
}

// Now returns the supervisor's clock reading. Callers use it to mark the start
// of a run passed to EnforceMaxRuntime.
func (s *Supervisor) Now() time.Time {
	return s.clock.Now()
}

// Start opens a log entry for name.
func (s *Supervisor) Start(name string, metadata Metadata) {
	e := &Entry{
		Operation: name,
		StartTime: s.clock.Now(),
		Metadata:  maps.Clone(metadata),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, e)
	s.open[name] = append(s.open[name], e)
	s.evict()
}

// End closes the most recently started open entry for name, merging metadata
// into it. It returns false when no entry for name is open.
func (s *Supervisor) End(name string, success bool, opErr error, metadata Metadata) bool {
	now := s.clock.Now()

	s.mu.Lock()
	stack := s.open[name]
	if len(stack) == 0 {
		s.mu.Unlock()
		slog.Warn("No open operation to end", "operation", name)
		return false
	}
	e := stack[len(stack)-1]
	s.popOpen(name)

	duration := now.Sub(e.StartTime)
	ms := duration.Milliseconds()
	e.EndTime = &now
	e.DurationMs = &ms
	e.Success = success
	if opErr != nil {
		e.Error = opErr.Error()
	}
	if len(metadata) > 0 {
		if e.Metadata == nil {
			e.Metadata = make(Metadata, len(metadata))
		}
		maps.Copy(e.Metadata, metadata)
	}
	s.mu.Unlock()

	s.metrics.observe(name, success, duration)
	if !success {
		slog.Error("Operation failed",
			"operation", name,
			"duration_ms", ms,
			"error", e.Error,
		)
	}
	return true
}

// Track runs fn between Start and End and returns fn's error unchanged.
func (s *Supervisor) Track(name string, metadata Metadata, fn func() error) error {
	_, err := Track(s, name, metadata, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Track runs fn between Start and End and returns its result and error unchanged.
// A panic in fn closes the entry as failed and is then re-raised.
func Track[T any](s *Supervisor, name string, metadata Metadata, fn func() (T, error)) (T, error) {
	s.Start(name, metadata)
	defer func() {
		if r := recover(); r != nil {
			s.End(name, false, fmt.Errorf("panic: %v", r), nil)
			panic(r)
		}
	}()

	v, err := fn()
	s.End(name, err == nil, err, nil)
	return v, err
}

// EnforceMaxRuntime fails once more than maxRuntime has passed since start.
// Exactly maxRuntime is still within budget. A non-positive maxRuntime uses
// DefaultMaxRuntime.
func (s *Supervisor) EnforceMaxRuntime(start time.Time, maxRuntime time.Duration) error {
	if maxRuntime <= 0 {
		maxRuntime = DefaultMaxRuntime
	}
	elapsed := s.clock.Now().Sub(start)
	if elapsed <= maxRuntime {
		return nil
	}
	s.metrics.deadlineExceeded()
	return &DeadlineError{Elapsed: elapsed, Max: maxRuntime}
}

// RecordRetry counts a retry of operation. It does not run anything.
func (s *Supervisor) RecordRetry(operation string, attempt int, cause error) {
	s.mu.Lock()
	s.retries[operation]++
	s.mu.Unlock()

	s.metrics.retry(operation)
	slog.Warn("Retrying operation",
		"operation", operation,
		"attempt", attempt,
		"error", cause,
	)
}

// Retries returns how many retries were recorded for operation.
func (s *Supervisor) Retries(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries[operation]
}

// Summary aggregates the completed entries. Open entries are only counted in
// Summary.Open.
func (s *Supervisor) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum Summary
	var totalMs int64
	for _, e := range s.entries {
		if e.Open() {
			sum.Open++
			continue
		}
		sum.Total++
		if e.Success {
			sum.Successful++
		} else {
			sum.Failed++
		}
		totalMs += *e.DurationMs
		sum.MaxDurationMs = max(sum.MaxDurationMs, *e.DurationMs)
	}
	if sum.Total > 0 {
		sum.AverageDurationMs = float64(totalMs) / float64(sum.Total)
	}
	for _, n := range s.retries {
		sum.Retries += n
	}
	return sum
}

// Entries returns a copy of the log, oldest first.
func (s *Supervisor) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		c := *e
		c.Metadata = maps.Clone(e.Metadata)
		out = append(out, c)
	}
	return out
}

// Clear empties the log, open entries and retry counts included.
func (s *Supervisor) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.open = make(map[string][]*Entry)
	s.retries = make(map[string]int)
}

// evict drops the oldest entries beyond the cap. Callers hold s.mu.
func (s *Supervisor) evict() {
	for len(s.entries) > s.maxEntries {
		oldest := s.entries[0]
		s.entries[0] = nil
		s.entries = s.entries[1:]
		if oldest.Open() {
			s.removeOpen(oldest)
		}
	}
}

// popOpen removes the top of name's open stack. Callers hold s.mu.
func (s *Supervisor) popOpen(name string) {
	stack := s.open[name]
	stack[len(stack)-1] = nil
	stack = stack[:len(stack)-1]
	if len(stack) == 0 {
		delete(s.open, name)
		return
	}
	s.open[name] = stack
}

// removeOpen drops an evicted entry from its open stack. Callers hold s.mu.
func (s *Supervisor) removeOpen(e *Entry) {
	stack := s.open[e.Operation]
	for i, candidate := range stack {
		if candidate == e {
			stack = slices.Delete(stack, i, i+1)
			break
		}
	}
	if len(stack) == 0 {
		delete(s.open, e.Operation)
		return
	}
	s.open[e.Operation] = stack
}
