package errors

import (
	"fmt"
	"sync"
	"time"
)

// Exit codes reported by the process
const (
	ExitClean     = 0
	ExitRunErrors = 1
	ExitConfig    = 2
	ExitAuth      = 3
)

// Entry is one non-fatal failure recorded during a run
type Entry struct {
	Kind    string
	ID      string
	Message string
	Type    ErrorType
	Fault   error
	At      time.Time
}

func (e Entry) String() string {
	return fmt.Sprintf("%s: %s ==> %s", e.Kind, e.ID, e.Message)
}

// Aggregator collects per-artifact and per-subject failures for a run and
// decides the process exit status.
type Aggregator struct {
	mu      sync.Mutex
	entries []Entry
	pending int
	fatal   int
	cause   error
	now     func() time.Time
}

// NewAggregator creates an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Add records a failure; kind names what failed ("artifact", "member", ...)
func (a *Aggregator) Add(kind, id string, err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, Entry{
		Kind:    kind,
		ID:      id,
		Message: err.Error(),
		Type:    TypeOf(err),
		Fault:   err,
		At:      a.now(),
	})
}

// Len returns the number of undrained entries
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Entries returns a copy of the undrained entries
func (a *Aggregator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Drain hands back everything recorded since the last drain and clears the
// list. A non-empty drain leaves a pending non-zero exit status.
func (a *Aggregator) Drain() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.entries
	a.entries = nil
	if len(out) > 0 {
		a.pending = ExitRunErrors
	}
	return out
}

// SetFatal records a fault that aborts the run. The exit code follows the
// fault's classification.
func (a *Aggregator) SetFatal(err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cause = err
	switch TypeOf(err) {
	case ErrorTypeConfig:
		a.fatal = ExitConfig
	case ErrorTypeAuth:
		a.fatal = ExitAuth
	default:
		a.fatal = ExitRunErrors
	}
}

// Fatal returns the fault passed to SetFatal, if any
func (a *Aggregator) Fatal() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cause
}

// ExitCode is the last fatal code, otherwise the pending status from drained
// or still undrained entries.
func (a *Aggregator) ExitCode() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fatal != 0 {
		return a.fatal
	}
	if len(a.entries) > 0 {
		return ExitRunErrors
	}
	return a.pending
}
