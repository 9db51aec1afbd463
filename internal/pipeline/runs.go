package pipeline

import (
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docset/internal/events"
)

// Run tracks the state of a single ingestion. Only the run's own goroutine
// advances it; readers go through Snapshot.
type Run struct {
	mu sync.Mutex

	ID          string
	SourceRef   string
	Fingerprint string
	Options     Options

	stage     events.Stage
	message   string
	articleID string
	kind      events.ErrorKind
	errMsg    string
	details   map[string]any

	createdAt  time.Time
	updatedAt  time.Time
	finishedAt time.Time

	cancelled atomic.Bool
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID         string           `json:"run_id"`
	SourceRef  string           `json:"source_ref"`
	Stage      events.Stage     `json:"stage"`
	Message    string           `json:"message"`
	ArticleID  string           `json:"article_id,omitempty"`
	ErrorKind  events.ErrorKind `json:"error_kind,omitempty"`
	Error      string           `json:"error,omitempty"`
	Details    map[string]any   `json:"details,omitempty"`
	Options    Options          `json:"options"`
	Cancelled  bool             `json:"cancel_requested"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

func newRun(id, ref, fingerprint string, opts Options, now time.Time) *Run {
	return &Run{
		ID:          id,
		SourceRef:   ref,
		Fingerprint: fingerprint,
		Options:     opts,
		stage:       events.StagePending,
		message:     "run accepted",
		createdAt:   now,
		updatedAt:   now,
	}
}

// newRunID returns "run_" plus eight hex digits of a random uuid.
func newRunID() string {
	return "run_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Stage returns the current stage.
func (r *Run) Stage() events.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

func (r *Run) setStage(stage events.Stage, msg string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = stage
	r.message = msg
	r.updatedAt = now
}

// finish moves the run to a terminal stage. It reports false if the run was
// already terminal.
func (r *Run) finish(stage events.Stage, articleID string, kind events.ErrorKind, msg string, details map[string]any, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stage.Terminal() {
		return false
	}
	r.stage = stage
	r.message = msg
	r.articleID = articleID
	r.kind = kind
	if stage == events.StageFailed {
		r.errMsg = msg
	}
	r.details = details
	r.updatedAt = now
	r.finishedAt = now
	return true
}

// Snapshot returns a JSON-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := RunSnapshot{
		ID:        r.ID,
		SourceRef: r.SourceRef,
		Stage:     r.stage,
		Message:   r.message,
		ArticleID: r.articleID,
		ErrorKind: r.kind,
		Error:     r.errMsg,
		Details:   maps.Clone(r.details),
		Options:   r.Options,
		Cancelled: r.cancelled.Load(),
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		s.FinishedAt = &t
	}
	return s
}

func (r *Run) expired(now time.Time, grace time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage.Terminal() && now.Sub(r.finishedAt) > grace
}

// RunStore is a thread-safe in-memory run registry. Finished runs are evicted
// once they have been terminal for longer than grace.
type RunStore struct {
	mu    sync.Mutex
	runs  map[string]*Run
	grace time.Duration
}

func NewRunStore(grace time.Duration) *RunStore {
	return &RunStore{
		runs:  make(map[string]*Run),
		grace: grace,
	}
}

// Put registers run. It reports false if the id is already taken.
func (s *RunStore) Put(run *Run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return false
	}
	s.runs[run.ID] = run
	return true
}

func (s *RunStore) Get(id string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

func (s *RunStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Cleanup removes expired runs and returns how many were dropped.
func (s *RunStore) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for id, run := range s.runs {
		if run.expired(now, s.grace) {
			delete(s.runs, id)
			n++
		}
	}
	return n
}
