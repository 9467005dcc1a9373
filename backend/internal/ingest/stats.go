package ingest

import (
	"sync"
	"time"
)

// Stats summarizes a run. Failed includes Malformed rows. Committed includes
// Duplicates, rows whose anime id was already in the same batch; they were
// merged into one vertex.
type Stats struct {
	RunID       string        `json:"run_id"`
	Running     bool          `json:"running"`
	Committed   int64         `json:"committed"`
	Skipped     int64         `json:"skipped"`
	Failed      int64         `json:"failed"`
	Malformed   int64         `json:"malformed"`
	Duplicates  int64         `json:"duplicates"`
	Batches     int64         `json:"batches"`
	Checkpoint  int64         `json:"checkpoint"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed"`
	Interrupted bool          `json:"interrupted"`
}

// Finalized is the number of rows that reached a final state this run.
func (s Stats) Finalized() int64 {
	return s.Committed + s.Skipped + s.Failed
}

// Progress holds the live stats of a run. It is safe for concurrent use, so
// the status server can read it while the committer updates it.
type Progress struct {
	mu    sync.Mutex
	stats Stats
}

func (p *Progress) start(runID string, checkpoint int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = Stats{
		RunID:      runID,
		Running:    true,
		Checkpoint: checkpoint,
		StartedAt:  time.Now(),
	}
}

func (p *Progress) update(fn func(*Stats)) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.stats)
	if p.stats.Running {
		p.stats.Elapsed = time.Since(p.stats.StartedAt)
	}
	return p.stats
}

// Snapshot returns a copy of the current stats.
func (p *Progress) Snapshot() Stats {
	return p.update(func(*Stats) {})
}
