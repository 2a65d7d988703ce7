package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// StatusTracker counts artifact outcomes for the subject being crawled and
// prints one status line per artifact.
type StatusTracker struct {
	mu        sync.Mutex
	w         io.Writer
	subject   string
	page      int
	pageTotal int
	pageDone  int
	counts    map[string]int
	// totals survive StartSubject and cover the whole command
	totals    map[string]int
	StartTime time.Time
	Quiet     bool
}

// NewStatusTracker creates a tracker writing to w
func NewStatusTracker(w io.Writer) *StatusTracker {
	return &StatusTracker{
		w:         w,
		counts:    make(map[string]int),
		totals:    make(map[string]int),
		StartTime: time.Now(),
	}
}

// StartSubject resets the per-subject counters
func (st *StatusTracker) StartSubject(subject string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.subject = subject
	st.counts = make(map[string]int)
	st.page, st.pageTotal, st.pageDone = 0, 0, 0
	st.StartTime = time.Now()
	if !st.Quiet {
		fmt.Fprintf(st.w, "\n%s %s\n", Magenta("[SUBJECT]"), Yellow(subject))
	}
}

// StartPage notes a listing page with n items
func (st *StatusTracker) StartPage(page, n int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.page, st.pageTotal, st.pageDone = page, n, 0
	if !st.Quiet {
		fmt.Fprintf(st.w, "%s page %d, %d items\n", Cyan("[SCANNING]"), page, n)
	}
}

// Record counts one artifact outcome
func (st *StatusTracker) Record(artifactID int64, outcome string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.counts[outcome]++
	st.totals[outcome]++
	st.pageDone++
	if st.Quiet {
		return
	}
	label := Dim("[" + strings.ToUpper(outcome) + "]")
	switch outcome {
	case "ok":
		label = Green("[SAVED]")
	case "not_ok":
		label = Red("[FAILED]")
	case "aborted":
		label = Orange("[ABORTED]")
	}
	fmt.Fprintf(st.w, "%s %d %s\n", label, artifactID, st.pageProgress())
}

func (st *StatusTracker) pageProgress() string {
	if st.pageTotal <= 0 {
		return ""
	}
	const width = 20
	done := st.pageDone
	if done > st.pageTotal {
		done = st.pageTotal
	}
	filled := done * width / st.pageTotal
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled)
	return Dim(fmt.Sprintf("[%s] %d/%d", bar, done, st.pageTotal))
}

// Counts returns a copy of the outcome counters for the current subject
func (st *StatusTracker) Counts() map[string]int {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[string]int, len(st.counts))
	for k, v := range st.counts {
		out[k] = v
	}
	return out
}

// Totals returns the counters accumulated over every subject since the
// tracker was created, or since the last ResetTotals.
func (st *StatusTracker) Totals() map[string]int {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[string]int, len(st.totals))
	for k, v := range st.totals {
		out[k] = v
	}
	return out
}

// ResetTotals clears the command-wide counters
func (st *StatusTracker) ResetTotals() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.totals = make(map[string]int)
}

// Total is the number of artifacts recorded for the current subject
func (st *StatusTracker) Total() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for _, v := range st.counts {
		n += v
	}
	return n
}

// GetElapsedTime returns the time since the subject started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}

// FormatCounts renders counters as "ok=3 skip_duplicate=5" in key order
func FormatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
