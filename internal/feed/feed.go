// Package feed broadcasts experiment-run progress over a local datagram
// socket so a watcher in another terminal can follow a run it did not
// start. Datagrams are change notifications, not state transfer: the
// authoritative run state is the persisted prompt aggregate, which the
// runner writes after every row.
package feed

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/timvw/promptbench/internal/model"
)

// Event is one run-progress notification. Rows is the number of scored
// results at the time of sending; a watcher uses it to detect staleness,
// not to render results.
type Event struct {
	User         string          `json:"user"`
	PromptID     string          `json:"prompt_id"`
	ExperimentID string          `json:"experiment_id"`
	RunID        string          `json:"run_id"`
	Status       model.RunStatus `json:"status"`
	Rows         int             `json:"rows"`
	TS           time.Time       `json:"ts"`
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.RunID) == "" {
		return fmt.Errorf("run_id is required")
	}
	if strings.TrimSpace(e.ExperimentID) == "" {
		return fmt.Errorf("experiment_id is required")
	}
	if !isValidStatus(e.Status) {
		return fmt.Errorf("invalid status %q", e.Status)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

func isValidStatus(s model.RunStatus) bool {
	switch s {
	case model.RunPending, model.RunRunning, model.RunCompleted, model.RunFailed:
		return true
	default:
		return false
	}
}

// Store keeps the latest event per run, expiring entries older than ttl
// so finished or abandoned runs age out of snapshots.
type Store struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]Event
}

func NewStore(ttl time.Duration) *Store {
	return &Store{ttl: ttl, data: make(map[string]Event)}
}

func (s *Store) Upsert(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[e.RunID] = e
}

// Snapshot returns the live events sorted by run id, newest timestamp
// winning per run. Expired entries are pruned as a side effect.
func (s *Store) Snapshot(now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl > 0 {
		for runID, e := range s.data {
			if now.Sub(e.TS) > s.ttl {
				delete(s.data, runID)
			}
		}
	}
	result := make([]Event, 0, len(s.data))
	for _, e := range s.data {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RunID == result[j].RunID {
			return result[i].TS.Before(result[j].TS)
		}
		return result[i].RunID < result[j].RunID
	})
	return result
}

// Latest returns the most recent event for the given experiment, or
// false when none is live.
func (s *Store) Latest(now time.Time, experimentID string) (Event, bool) {
	var best Event
	var found bool
	for _, e := range s.Snapshot(now) {
		if e.ExperimentID != experimentID {
			continue
		}
		if !found || e.TS.After(best.TS) {
			best = e
			found = true
		}
	}
	return best, found
}
