package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docset/internal/config"
	"github.com/dgallion1/docset/internal/events"
	"github.com/dgallion1/docset/internal/parser"
	"github.com/dgallion1/docset/internal/pipeline"
	"github.com/dgallion1/docset/internal/source"
)

var ingestCommand = &cobra.Command{
	Use:   "ingest <url|file>",
	Short: "Ingest one source in-process and print progress as JSON lines",
	Long: `Runs a single ingestion without the HTTP server. A local file is registered as an
upload first. Every progress event is printed to stdout as one JSON object per line;
logs go to stderr. The exit status is non-zero if the run fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var ingestOpts = pipeline.DefaultOptions()

func init() {
	f := ingestCommand.Flags()
	f.IntVar(&ingestOpts.ChunkSize, "chunk-size", ingestOpts.ChunkSize, "Target chunk size in characters (100-5000)")
	f.IntVar(&ingestOpts.ChunkOverlap, "overlap", ingestOpts.ChunkOverlap, "Characters shared by adjacent chunks (0-1000, below chunk size)")
	f.StringVar(&ingestOpts.SplitStrategy, "strategy", ingestOpts.SplitStrategy, "Split strategy: recursive, sentence or header_aware")
	f.IntVarP(&ingestOpts.TotalQuestions, "questions", "q", ingestOpts.TotalQuestions, "Total questions to generate (1-50)")
	f.BoolVar(&ingestOpts.ForceReingest, "force", false, "Ingest again even if the source was ingested before")
	rootCmd.AddCommand(ingestCommand)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(true); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := cfg.NewLoggerTo(cmd.ErrOrStderr())

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.orch.Stop()

	ref, err := resolveRef(a.uploads, args[0])
	if err != nil {
		return err
	}

	runID, sub, err := a.orch.StartWatched(cmd.Context(), ref, ingestOpts)
	if err != nil {
		return err
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	last, err := printEvents(ctx, sub, cmd.OutOrStdout(), func() {
		if err := a.orch.Cancel(runID); err == nil {
			log.Info("interrupt received, cancelling run", "run_id", runID)
		}
	})
	if err != nil {
		return err
	}
	if last.Stage == events.StageFailed {
		return fmt.Errorf("run %s failed (%s): %s", runID, last.ErrorKind, last.Message)
	}
	return nil
}

// resolveRef registers arg as an upload when it names a local file and
// returns the source reference to ingest.
func resolveRef(uploads *source.Uploads, arg string) (string, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") || source.IsUpload(arg) {
		return arg, nil
	}
	info, err := os.Stat(arg)
	if err != nil {
		return "", fmt.Errorf("%s is neither a URL nor a readable file: %w", arg, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", arg)
	}
	name := filepath.Base(arg)
	if !parser.IsSupportedExtension(name) {
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(name))
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", arg, err)
	}
	return uploads.Put(name, data).Ref, nil
}

// printEvents writes events as JSON lines until the terminal event. The first
// interrupt calls onInterrupt and keeps waiting for the run to wind down.
func printEvents(ctx context.Context, sub *events.Subscription, w io.Writer, onInterrupt func()) (events.Event, error) {
	enc := json.NewEncoder(w)
	var last events.Event
	waitCtx, interrupted := ctx, false
	for {
		ev, err := sub.Next(waitCtx)
		switch {
		case err == nil:
			last = ev
			if err := enc.Encode(ev); err != nil {
				return last, fmt.Errorf("write event: %w", err)
			}
			if ev.Terminal() {
				return last, nil
			}
		case errors.Is(err, events.ErrStreamClosed):
			return last, errors.New("event stream closed before the run finished")
		case !interrupted && ctx.Err() != nil:
			onInterrupt()
			waitCtx, interrupted = context.Background(), true
		default:
			return last, err
		}
	}
}
