package cache

import (
	"strings"
	"sync"
)

// invalidationMarks remembers, per key and per prefix, the sequence number of
// the last invalidation that touched it. A load started at sequence s is
// stale for key when a mark newer than s covers key.
//
// Marks only matter while a load that started before them is still running,
// so every invalidation drops the marks no in-flight load can observe.
type invalidationMarks struct {
	// seq, keys and prefixes are guarded by ReadThrough.mu: written under the
	// write lock, read under the read lock.
	seq      uint64
	keys     map[string]uint64
	prefixes map[string]uint64

	loadsMu sync.Mutex
	loads   map[uint64]int // start sequence -> in-flight loads
}

func newInvalidationMarks() *invalidationMarks {
	return &invalidationMarks{
		keys:     make(map[string]uint64),
		prefixes: make(map[string]uint64),
		loads:    make(map[uint64]int),
	}
}

// begin registers a load and returns its start sequence. The caller must
// hold ReadThrough.mu for reading.
func (m *invalidationMarks) begin() uint64 {
	m.loadsMu.Lock()
	defer m.loadsMu.Unlock()

	s := m.seq
	m.loads[s]++
	return s
}

func (m *invalidationMarks) end(start uint64) {
	m.loadsMu.Lock()
	defer m.loadsMu.Unlock()

	if m.loads[start]--; m.loads[start] <= 0 {
		delete(m.loads, start)
	}
}

// mark records an invalidation. The caller must hold ReadThrough.mu for
// writing.
func (m *invalidationMarks) mark(keys, prefixes []string) {
	m.loadsMu.Lock()
	defer m.loadsMu.Unlock()

	m.seq++
	for _, k := range keys {
		m.keys[k] = m.seq
	}
	for _, p := range prefixes {
		m.prefixes[p] = m.seq
	}

	oldest, running := m.oldestLoad()
	for k, s := range m.keys {
		if !running || s <= oldest {
			delete(m.keys, k)
		}
	}
	for p, s := range m.prefixes {
		if !running || s <= oldest {
			delete(m.prefixes, p)
		}
	}
}

func (m *invalidationMarks) oldestLoad() (uint64, bool) {
	var (
		oldest  uint64
		running bool
	)
	for s := range m.loads {
		if !running || s < oldest {
			oldest, running = s, true
		}
	}
	return oldest, running
}

// generation returns the newest mark covering key, 0 when none. The caller
// must hold ReadThrough.mu for reading.
func (m *invalidationMarks) generation(key string) uint64 {
	g := m.keys[key]
	for p, s := range m.prefixes {
		if s > g && strings.HasPrefix(key, p) {
			g = s
		}
	}
	return g
}
