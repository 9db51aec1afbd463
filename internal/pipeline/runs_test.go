package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docset/internal/events"
)

func TestRun_StateTransitions(t *testing.T) {
	now := time.Now()
	run := newRun("run_1", testRef, "fp", DefaultOptions(), now)

	for _, stage := range events.Stages[1:] {
		run.setStage(stage, "in "+string(stage), now)
		snap := run.Snapshot()
		if snap.Stage != stage || snap.Message != "in "+string(stage) {
			t.Errorf("snapshot = %+v, want stage %s", snap, stage)
		}
		if snap.FinishedAt != nil {
			t.Errorf("non-terminal stage %s has a finish time", stage)
		}
	}

	if !run.finish(events.StageDone, "a_1", "", "ok", map[string]any{"n": 1}, now) {
		t.Fatal("first finish must succeed")
	}
	if run.finish(events.StageFailed, "", events.KindCancelled, "late", nil, now) {
		t.Error("terminal runs must not transition again")
	}
	snap := run.Snapshot()
	if snap.Stage != events.StageDone || snap.ArticleID != "a_1" || snap.ErrorKind != "" || snap.FinishedAt == nil {
		t.Errorf("unexpected terminal snapshot %+v", snap)
	}

	// Snapshots do not alias the run's details.
	snap.Details["n"] = 2
	if run.Snapshot().Details["n"] != 1 {
		t.Error("snapshot details alias run state")
	}
}

func TestRun_FailureRecordsError(t *testing.T) {
	now := time.Now()
	run := newRun("run_2", testRef, "fp", DefaultOptions(), now)
	run.finish(events.StageFailed, "", events.KindSourceUnavailable, "404", nil, now)

	snap := run.Snapshot()
	if snap.ErrorKind != events.KindSourceUnavailable || snap.Error != "404" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestRunStore_PutGetCleanup(t *testing.T) {
	s := NewRunStore(time.Minute)
	now := time.Now()

	active := newRun("run_a", testRef, "fp", DefaultOptions(), now)
	done := newRun("run_b", testRef, "fp", DefaultOptions(), now)
	if !s.Put(active) || !s.Put(done) {
		t.Fatal("Put failed")
	}
	if s.Put(newRun("run_a", testRef, "fp", DefaultOptions(), now)) {
		t.Error("duplicate id accepted")
	}
	if s.Get("run_a") != active {
		t.Error("Get returned the wrong run")
	}
	done.finish(events.StageDone, "x_1", "", "ok", nil, now)

	if n := s.Cleanup(now.Add(30 * time.Second)); n != 0 {
		t.Errorf("evicted %d runs inside grace", n)
	}
	if n := s.Cleanup(now.Add(2 * time.Minute)); n != 1 {
		t.Errorf("evicted %d runs, want 1", n)
	}
	if s.Get("run_b") != nil {
		t.Error("finished run survived cleanup")
	}
	if s.Get("run_a") == nil {
		t.Error("active run must never be evicted")
	}
}

func TestNewRunID(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := newRunID()
		if !strings.HasPrefix(id, "run_") || len(id) != 12 {
			t.Fatalf("unexpected run id %q", id)
		}
		seen[id] = true
	}
	if len(seen) < 99 {
		t.Errorf("run ids collide too often: %d unique of 100", len(seen))
	}
}
