package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBus() *Bus {
	return NewBus(time.Minute, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func drain(t *testing.T, s *Subscription) []Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var out []Event
	for {
		ev, err := s.Next(ctx)
		if errors.Is(err, ErrStreamClosed) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func stages(evs []Event) []Stage {
	out := make([]Stage, len(evs))
	for i, ev := range evs {
		out[i] = ev.Stage
	}
	return out
}

func TestBus_FanOutInOrder(t *testing.T) {
	b := testBus()
	s1 := b.Subscribe("run_1")
	s2 := b.Subscribe("run_1")

	for _, st := range []Stage{StageFetching, StageCleaning, StageSplitting, StageDone} {
		require.True(t, b.Publish(Event{RunID: "run_1", Stage: st}))
	}

	want := []Stage{StageFetching, StageCleaning, StageSplitting, StageDone}
	assert.Equal(t, want, stages(drain(t, s1)))
	assert.Equal(t, want, stages(drain(t, s2)))
}

func TestBus_NoSubscribersDoesNotBlock(t *testing.T) {
	b := testBus()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(Event{RunID: "run_x", Stage: StageQuestionGen, Message: fmt.Sprint(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked without subscribers")
	}
}

func TestBus_LateSubscriberSeesOnlyNewEvents(t *testing.T) {
	b := testBus()
	b.Publish(Event{RunID: "r", Stage: StageFetching})
	late := b.Subscribe("r")
	b.Publish(Event{RunID: "r", Stage: StageCleaning})
	b.Publish(Event{RunID: "r", Stage: StageFailed, ErrorKind: KindCancelled})

	evs := drain(t, late)
	assert.Equal(t, []Stage{StageCleaning, StageFailed}, stages(evs))
	assert.Equal(t, KindCancelled, evs[1].ErrorKind)
}

func TestBus_TerminalExactlyOnceAndNothingAfter(t *testing.T) {
	b := testBus()
	s := b.Subscribe("r")
	b.Publish(Event{RunID: "r", Stage: StageDone})
	assert.False(t, b.Publish(Event{RunID: "r", Stage: StageFailed}))
	assert.False(t, b.Publish(Event{RunID: "r", Stage: StageCleaning}))

	evs := drain(t, s)
	require.Len(t, evs, 1)
	assert.Equal(t, StageDone, evs[0].Stage)

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestBus_SubscribeAfterTerminalGetsOutcome(t *testing.T) {
	b := testBus()
	b.Publish(Event{RunID: "r", Stage: StageDone, ArticleID: "art_1"})

	evs := drain(t, b.Subscribe("r"))
	require.Len(t, evs, 1)
	assert.Equal(t, "art_1", evs[0].ArticleID)
}

func TestBus_TimestampsFilled(t *testing.T) {
	b := testBus()
	s := b.Subscribe("r")
	b.Publish(Event{RunID: "r", Stage: StageDone})
	evs := drain(t, s)
	assert.False(t, evs[0].Timestamp.IsZero())
}

func TestBus_NextHonoursContext(t *testing.T) {
	b := testBus()
	s := b.Subscribe("r")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_CloseDetaches(t *testing.T) {
	b := testBus()
	s := b.Subscribe("r")
	s.Close()
	b.Publish(Event{RunID: "r", Stage: StageFetching})

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestBus_SweepGraceAndIdle(t *testing.T) {
	b := NewBus(time.Minute, 10*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.Publish(Event{RunID: "finished", Stage: StageDone})
	b.Publish(Event{RunID: "abandoned", Stage: StageFetching})
	require.Equal(t, 2, b.Len())

	assert.Equal(t, 0, b.Sweep(time.Now()))
	assert.Equal(t, 1, b.Sweep(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 1, b.Len())

	assert.Equal(t, 1, b.Sweep(time.Now().Add(11*time.Minute)))
	assert.Equal(t, 0, b.Len())
}

func TestBus_SweepKeepsSilentRunWhileObserved(t *testing.T) {
	b := NewBus(time.Minute, 10*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	watched := b.Subscribe("slow")
	b.Publish(Event{RunID: "slow", Stage: StageQuestionGen})

	// A long LLM call keeps the run quiet well past the idle timeout.
	assert.Equal(t, 0, b.Sweep(time.Now().Add(time.Hour)))
	require.Equal(t, 1, b.Len())

	b.Publish(Event{RunID: "slow", Stage: StageDone})
	assert.Equal(t, []Stage{StageQuestionGen, StageDone}, stages(drain(t, watched)))

	left := b.Subscribe("stalled")
	b.Publish(Event{RunID: "stalled", Stage: StageFetching})
	left.Close()
	assert.Equal(t, 2, b.Sweep(time.Now().Add(time.Hour)))
	assert.Equal(t, 0, b.Len())
}

func TestBus_ConcurrentRuns(t *testing.T) {
	b := testBus()
	const runs, perRun = 8, 50

	var subs []*Subscription
	for r := 0; r < runs; r++ {
		for k := 0; k < 3; k++ {
			subs = append(subs, b.Subscribe(fmt.Sprintf("run_%d", r)))
		}
	}

	var wg sync.WaitGroup
	for r := 0; r < runs; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			id := fmt.Sprintf("run_%d", r)
			for i := 0; i < perRun; i++ {
				b.Publish(Event{RunID: id, Stage: StageQuestionGen, Message: fmt.Sprint(i)})
			}
			b.Publish(Event{RunID: id, Stage: StageDone})
		}(r)
	}

	var mu sync.Mutex
	results := map[*Subscription][]Event{}
	var rg sync.WaitGroup
	for _, s := range subs {
		rg.Add(1)
		go func(s *Subscription) {
			defer rg.Done()
			evs := drain(t, s)
			mu.Lock()
			results[s] = evs
			mu.Unlock()
		}(s)
	}
	wg.Wait()
	rg.Wait()

	for s, evs := range results {
		require.Len(t, evs, perRun+1, s.RunID())
		for i := 0; i < perRun; i++ {
			assert.Equal(t, fmt.Sprint(i), evs[i].Message)
			assert.Equal(t, s.RunID(), evs[i].RunID)
		}
		assert.Equal(t, StageDone, evs[perRun].Stage)
	}
}
