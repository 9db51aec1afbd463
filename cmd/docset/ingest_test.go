package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docset/internal/events"
	"github.com/dgallion1/docset/internal/source"
)

func TestResolveRef(t *testing.T) {
	uploads := source.NewUploads(time.Hour)

	ref, err := resolveRef(uploads, "https://en.wikipedia.org/wiki/Go")
	require.NoError(t, err)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Go", ref)

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes\n\nSome text."), 0o644))

	ref, err = resolveRef(uploads, path)
	require.NoError(t, err)
	assert.True(t, source.IsUpload(ref))
	up, err := uploads.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, "notes.md", up.Filename)

	_, err = resolveRef(uploads, filepath.Join(dir, "missing.md"))
	assert.Error(t, err)

	bin := filepath.Join(dir, "tool.exe")
	require.NoError(t, os.WriteFile(bin, []byte("MZ"), 0o644))
	_, err = resolveRef(uploads, bin)
	assert.ErrorContains(t, err, "unsupported file type")

	_, err = resolveRef(uploads, dir)
	assert.ErrorContains(t, err, "directory")
}

func TestPrintEvents(t *testing.T) {
	bus := events.NewBus(time.Minute, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sub := bus.Subscribe("run_1")
	bus.Publish(events.Event{RunID: "run_1", Stage: events.StageFetching, Message: "fetching"})
	bus.Publish(events.Event{RunID: "run_1", Stage: events.StageFailed, Message: "404", ErrorKind: events.KindSourceUnavailable})

	var out bytes.Buffer
	last, err := printEvents(context.Background(), sub, &out, func() { t.Error("unexpected interrupt") })
	require.NoError(t, err)
	assert.Equal(t, events.StageFailed, last.Stage)

	sc := bufio.NewScanner(&out)
	var lines []events.Event
	for sc.Scan() {
		var ev events.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		lines = append(lines, ev)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, events.StageFetching, lines[0].Stage)
	assert.Equal(t, events.KindSourceUnavailable, lines[1].ErrorKind)
}

func TestPrintEvents_InterruptCancelsOnce(t *testing.T) {
	bus := events.NewBus(time.Minute, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sub := bus.Subscribe("run_2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	last, err := printEvents(ctx, sub, io.Discard, func() {
		calls++
		bus.Publish(events.Event{RunID: "run_2", Stage: events.StageFailed, ErrorKind: events.KindCancelled})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, events.KindCancelled, last.ErrorKind)
}
