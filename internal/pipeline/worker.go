package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docset/internal/chunker"
	"github.com/dgallion1/docset/internal/events"
	"github.com/dgallion1/docset/internal/planner"
	"github.com/dgallion1/docset/internal/questions"
	"github.com/dgallion1/docset/internal/source"
	"github.com/dgallion1/docset/internal/storage"
)

// Generation outcomes recorded in DONE details and the article index.
const (
	GenerationOK      = "ok"
	GenerationPartial = "partial"
	GenerationFailed  = "failed"
)

// worker carries one run through its stages.
type worker struct {
	o       *Orchestrator
	run     *Run
	log     *slog.Logger
	entered time.Time
}

// process runs every stage in order. A non-nil error ends the run in FAILED.
func (w *worker) process(ctx context.Context) error {
	run := w.run
	opts := run.Options

	// Idempotency check
	existing, err := w.o.store.FindByFingerprint(run.Fingerprint)
	if err != nil {
		return runErr(events.KindStorageFailure, events.StagePending, fmt.Errorf("lookup fingerprint: %w", err))
	}
	if existing != nil && !opts.ForceReingest {
		w.log.Info("source already ingested", "article_id", existing.ID)
		w.succeed(existing.ID, "article already ingested", map[string]any{"existing": true})
		return nil
	}
	if existing != nil {
		w.log.Info("forcing re-ingest", "previous_article_id", existing.ID)
	}
	w.emit(events.StagePending, "run accepted", map[string]any{"fingerprint": run.Fingerprint})

	// Phase 1: Fetch
	if err := w.enter(events.StageFetching, "fetching "+run.SourceRef, nil); err != nil {
		return err
	}
	doc, err := w.o.fetcher.Fetch(ctx, run.SourceRef)
	if err != nil {
		return runErr(events.KindSourceUnavailable, events.StageFetching, err)
	}

	// Phase 2: Clean
	if err := w.enter(events.StageCleaning, fmt.Sprintf("cleaning %d bytes", len(doc.Body)),
		map[string]any{"bytes": len(doc.Body), "content_type": doc.ContentType}); err != nil {
		return err
	}
	cleaned, err := w.o.cleaner.Clean(doc)
	if err != nil {
		return runErr(events.KindSourceUnavailable, events.StageCleaning, err)
	}
	title := firstNonEmpty(cleaned.Title, doc.Title, run.SourceRef)
	createdAt := w.o.now()
	articleID := newArticleID(title, run.SourceRef, createdAt)

	// Phase 3: Split
	if err := w.enter(events.StageSplitting, "splitting "+title, map[string]any{
		"word_count": cleaned.WordCount,
		"char_count": cleaned.CharCount,
		"strategy":   opts.SplitStrategy,
	}); err != nil {
		return err
	}
	chunks, err := chunker.Split(cleaned.Text, chunker.Options{
		Strategy:   chunker.Strategy(opts.SplitStrategy),
		ChunkSize:  opts.ChunkSize,
		Overlap:    opts.ChunkOverlap,
		DocumentID: articleID,
		Sections:   cleaned.Sections,
	})
	if err != nil {
		return runErr(events.KindSplittingFailed, events.StageSplitting, err)
	}
	if len(chunks) == 0 {
		return runErr(events.KindSplittingFailed, events.StageSplitting, errors.New("splitting produced no chunks"))
	}
	original, filtered := len(chunks), 0
	if w.o.cfg.EnableChunkFiltering {
		chunks, filtered = chunker.Filter(chunks, chunker.FilterOptions{
			MinWords: w.o.cfg.MinChunkWords,
			Sections: w.o.cfg.StripSections,
		})
	}
	stats := storage.ArticleStats{
		WordCount:      cleaned.WordCount,
		CharCount:      cleaned.CharCount,
		TotalChunks:    len(chunks),
		OriginalChunks: original,
		FilteredOut:    filtered,
	}
	w.emit(events.StageSplitting, fmt.Sprintf("split into %d chunks", len(chunks)), map[string]any{
		"total_chunks":    stats.TotalChunks,
		"original_chunks": stats.OriginalChunks,
		"filtered_out":    stats.FilteredOut,
	})

	// Phase 4: Markdown
	if err := w.enter(events.StageWriteMarkdown, "writing article "+articleID, nil); err != nil {
		return err
	}
	err = w.o.store.WriteArticle(storage.Article{
		ID:          articleID,
		URL:         firstNonEmpty(doc.URL, run.SourceRef),
		Title:       title,
		Lang:        cleaned.Lang,
		Fingerprint: run.Fingerprint,
		CreatedAt:   createdAt,
		Options:     opts.settings(),
		Stats:       stats,
		Text:        cleaned.Text,
		Chunks:      chunks,
		RawFilename: doc.Filename,
		Raw:         doc.Body,
	})
	if err != nil {
		return runErr(events.KindStorageFailure, events.StageWriteMarkdown, err)
	}

	// Phase 5: Questions
	if err := w.enter(events.StageQuestionGen, fmt.Sprintf("generating %d questions", opts.TotalQuestions),
		map[string]any{"requested_questions": opts.TotalQuestions}); err != nil {
		return err
	}
	groups, err := planner.Plan(chunks, opts.TotalQuestions)
	if err != nil {
		return runErr(events.KindSplittingFailed, events.StageQuestionGen, err)
	}
	gen := w.generate(ctx, title, groups)
	if ctx.Err() != nil {
		return runErr(events.KindCancelled, events.StageQuestionGen, ctx.Err())
	}

	// Phase 6: Dataset
	if err := w.enter(events.StageWriteDatasetMD, fmt.Sprintf("writing %d questions", len(gen.questions)), nil); err != nil {
		return err
	}
	err = w.o.store.WriteDataset(storage.Dataset{
		ArticleID:   articleID,
		Title:       title,
		GeneratedAt: w.o.now(),
		Questions:   gen.questions,
	})
	if err != nil {
		return runErr(events.KindStorageFailure, events.StageWriteDatasetMD, err)
	}
	if err := w.checkCancelled(); err != nil {
		return err
	}
	err = w.o.store.Commit(storage.Entry{
		ID:          articleID,
		Title:       title,
		URL:         firstNonEmpty(doc.URL, run.SourceRef),
		Lang:        cleaned.Lang,
		Fingerprint: run.Fingerprint,
		CreatedAt:   createdAt,
		Chunks:      len(chunks),
		Questions:   len(gen.questions),
		Generation:  gen.status,
	})
	if err != nil {
		return runErr(events.KindStorageFailure, events.StageWriteDatasetMD, fmt.Errorf("commit index: %w", err))
	}

	details := map[string]any{
		"total_chunks":        stats.TotalChunks,
		"original_chunks":     stats.OriginalChunks,
		"filtered_out":        stats.FilteredOut,
		"word_count":          stats.WordCount,
		"total_questions":     len(gen.questions),
		"requested_questions": opts.TotalQuestions,
		"questions_shortfall": max(0, opts.TotalQuestions-len(gen.questions)),
		"groups":              len(groups),
		"failed_groups":       gen.failed,
		"generation":          gen.status,
	}
	if gen.kind != "" {
		details["generation_error_kind"] = string(gen.kind)
	}
	w.succeed(articleID, fmt.Sprintf("ingested %q: %d chunks, %d questions", title, len(chunks), len(gen.questions)), details)
	return nil
}

type generation struct {
	questions []questions.Question
	failed    int
	status    string
	kind      events.ErrorKind
}

// generate fans groups out to the generator with bounded concurrency and
// merges the results in group order. Failed groups contribute nothing.
func (w *worker) generate(ctx context.Context, title string, groups []planner.Group) generation {
	results := make([][]questions.Question, len(groups))
	errs := make([]error, len(groups))
	var completed atomic.Int32

	var g errgroup.Group
	g.SetLimit(max(1, w.o.cfg.MaxConcurrentGeneration))
	for i, grp := range groups {
		g.Go(func() error {
			started := time.Now()
			qs, err := w.generateGroup(ctx, title, grp)
			results[i], errs[i] = qs, err
			w.o.metrics.QuestionGroup(err == nil)

			n := completed.Add(1)
			if err != nil {
				w.log.Warn("question group failed", "group", i, "chunks", len(grp.ChunkIDs), "error", err)
			} else {
				w.log.Debug("question group done", "group", i, "questions", len(qs), "duration_ms", time.Since(started).Milliseconds())
			}
			w.emit(events.StageQuestionGen, fmt.Sprintf("group %d/%d finished", n, len(groups)), map[string]any{
				"group":     i,
				"completed": int(n),
				"groups":    len(groups),
				"questions": len(qs),
				"failed":    err != nil,
			})
			return nil
		})
	}
	_ = g.Wait()

	var out generation
	for i := range groups {
		if errs[i] != nil {
			out.failed++
			continue
		}
		out.questions = append(out.questions, results[i]...)
	}
	switch {
	case out.failed == 0:
		out.status = GenerationOK
	case out.failed == len(groups):
		out.status = GenerationFailed
		out.kind = events.KindGenerationTotalFailure
	default:
		out.status = GenerationPartial
		out.kind = events.KindGenerationPartialFailure
	}
	return out
}

func (w *worker) generateGroup(ctx context.Context, title string, grp planner.Group) (qs []questions.Question, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	return w.o.gen.Generate(ctx, questions.Request{
		ArticleTitle: title,
		Chunks:       grp.Chunks,
		Count:        grp.Questions,
	})
}

func (w *worker) checkCancelled() error {
	if w.run.cancelled.Load() {
		return runErr(events.KindCancelled, w.run.Stage(), ErrCancelled)
	}
	return nil
}

// enter transitions the run to stage and publishes its event. The cancel flag
// is checked first so a cancelled run never starts new work.
func (w *worker) enter(stage events.Stage, msg string, details map[string]any) error {
	if err := w.checkCancelled(); err != nil {
		return err
	}
	now := w.o.now()
	w.o.metrics.ObserveStage(string(w.run.Stage()), now.Sub(w.entered))
	w.entered = now
	w.run.setStage(stage, msg, now)
	w.log.Info("stage", "stage", stage, "message", msg)
	w.emit(stage, msg, details)
	return nil
}

func (w *worker) emit(stage events.Stage, msg string, details map[string]any) {
	w.o.publish(events.Event{
		RunID:   w.run.ID,
		Stage:   stage,
		Message: msg,
		Details: details,
	})
}

func (w *worker) succeed(articleID, msg string, details map[string]any) {
	now := w.o.now()
	w.o.metrics.ObserveStage(string(w.run.Stage()), now.Sub(w.entered))
	if !w.run.finish(events.StageDone, articleID, "", msg, details, now) {
		return
	}
	w.o.publish(events.Event{
		RunID:     w.run.ID,
		Stage:     events.StageDone,
		Message:   msg,
		Timestamp: now,
		ArticleID: articleID,
		Details:   details,
	})
	kind, _ := details["generation_error_kind"].(string)
	w.o.metrics.RunFinished("done", kind)
	w.log.Info("run finished", "article_id", articleID, "message", msg)
}

func (w *worker) fail(err error) {
	stage := w.run.Stage()
	var re *RunError
	if !errors.As(err, &re) {
		re = runErr(stageKind(stage), stage, err)
	}
	if w.o.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		re = runErr(events.KindCancelled, re.Stage, err)
	}

	now := w.o.now()
	w.o.metrics.ObserveStage(string(stage), now.Sub(w.entered))
	msg := re.Err.Error()
	details := map[string]any{"stage": string(re.Stage)}
	if !w.run.finish(events.StageFailed, "", re.Kind, msg, details, now) {
		return
	}
	w.o.publish(events.Event{
		RunID:     w.run.ID,
		Stage:     events.StageFailed,
		Message:   msg,
		Timestamp: now,
		ErrorKind: re.Kind,
		Details:   details,
	})
	w.o.metrics.RunFinished("failed", string(re.Kind))
	if re.Kind == events.KindCancelled {
		w.log.Info("run cancelled", "stage", re.Stage)
		return
	}
	w.log.Error("run failed", "stage", re.Stage, "kind", re.Kind, "error", re.Err)
}

// newArticleID builds a filesystem-safe id from up to 20 lowercase
// alphanumerics of the title and a short hash of the source and time.
func newArticleID(title, ref string, created time.Time) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if b.Len() == 20 {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	slug := b.String()
	if slug == "" {
		slug = "article"
	}
	sum := source.HashHex([]byte(ref + title + created.Format(time.RFC3339Nano)))
	return slug + "_" + sum[:8]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
