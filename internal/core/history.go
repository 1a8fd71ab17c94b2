package core

import "sync"

// DefaultHistorySize is the number of runs kept when no size is configured.
const DefaultHistorySize = 50

// History keeps the most recent runs in memory, bounded by size.
type History struct {
	mu   sync.RWMutex
	runs []RunResult // oldest first
	size int
}

// NewHistory creates a history that retains at most size runs.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

// Put inserts or updates a run, matched by ID.
func (h *History) Put(run RunResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.runs) - 1; i >= 0; i-- {
		if h.runs[i].ID == run.ID {
			h.runs[i] = run
			return
		}
	}

	h.runs = append(h.runs, run)
	if len(h.runs) > h.size {
		h.runs = append(h.runs[:0], h.runs[len(h.runs)-h.size:]...)
	}
}

// Get returns the run with the given ID.
func (h *History) Get(id string) (RunResult, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, r := range h.runs {
		if r.ID == id {
			return r, true
		}
	}
	return RunResult{}, false
}

// Recent returns up to limit runs, newest first. limit <= 0 returns all.
func (h *History) Recent(limit int) []RunResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RunResult, 0, n)
	for i := len(h.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.runs[i])
	}
	return out
}

// Last returns the newest run.
func (h *History) Last() (RunResult, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.runs) == 0 {
		return RunResult{}, false
	}
	return h.runs[len(h.runs)-1], true
}
