// Package events carries run progress from the pipeline to any number of
// observers.
package events

import "time"

// Stage is one named phase of a run.
type Stage string

const (
	StagePending        Stage = "PENDING"
	StageFetching       Stage = "FETCHING"
	StageCleaning       Stage = "CLEANING"
	StageSplitting      Stage = "SPLITTING"
	StageWriteMarkdown  Stage = "WRITE_MARKDOWN"
	StageQuestionGen    Stage = "QUESTION_GEN"
	StageWriteDatasetMD Stage = "WRITE_DATASET_MD"
	StageDone           Stage = "DONE"
	StageFailed         Stage = "FAILED"
)

// Stages lists the non-terminal stages in execution order.
var Stages = []Stage{
	StagePending,
	StageFetching,
	StageCleaning,
	StageSplitting,
	StageWriteMarkdown,
	StageQuestionGen,
	StageWriteDatasetMD,
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// ErrorKind classifies why a run failed or degraded.
type ErrorKind string

const (
	KindSourceUnavailable        ErrorKind = "SourceUnavailable"
	KindInvalidOptions           ErrorKind = "InvalidOptions"
	KindSplittingFailed          ErrorKind = "SplittingFailed"
	KindGenerationPartialFailure ErrorKind = "GenerationPartialFailure"
	KindGenerationTotalFailure   ErrorKind = "GenerationTotalFailure"
	KindStorageFailure           ErrorKind = "StorageFailure"
	KindCancelled                ErrorKind = "Cancelled"
)

// Event is an immutable progress notification.
type Event struct {
	RunID     string         `json:"run_id"`
	Stage     Stage          `json:"stage"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	ArticleID string         `json:"article_id,omitempty"`
	ErrorKind ErrorKind      `json:"error_kind,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Terminal reports whether ev ends its run's stream.
func (ev Event) Terminal() bool {
	return ev.Stage.Terminal()
}
