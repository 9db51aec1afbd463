package pipeline

import (
	"errors"
	"fmt"

	"github.com/dgallion1/docset/internal/events"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunFinished = errors.New("run already finished")
	ErrCancelled   = errors.New("run cancelled")

	ErrShuttingDown = errors.New("pipeline is shutting down")
)

// RunError is the reason a run ended in FAILED, or was refused by Start.
type RunError struct {
	Kind  events.ErrorKind
	Stage events.Stage
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s during %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func runErr(kind events.ErrorKind, stage events.Stage, err error) *RunError {
	return &RunError{Kind: kind, Stage: stage, Err: err}
}

// KindOf extracts the error kind of err, or "" if err is not a RunError.
func KindOf(err error) events.ErrorKind {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// stageKind is the kind assigned to an unexpected failure inside stage.
func stageKind(stage events.Stage) events.ErrorKind {
	switch stage {
	case events.StageFetching, events.StageCleaning:
		return events.KindSourceUnavailable
	case events.StageSplitting:
		return events.KindSplittingFailed
	case events.StageQuestionGen:
		return events.KindGenerationTotalFailure
	default:
		return events.KindStorageFailure
	}
}
