package ingest

import "time"

// StopReason names the terminal condition that ended a run.
type StopReason string

const (
	// StopGoal means the rollover goal was reached.
	StopGoal StopReason = "goal"
	// StopTimeCap means the wall-clock cap fired first. This is a
	// reported stopping reason, not an error.
	StopTimeCap StopReason = "timecap"
	// StopCanceled means the caller's context was canceled.
	StopCanceled StopReason = "canceled"
	// StopFatal means an unrecoverable backend error ended the run.
	StopFatal StopReason = "fatal"
)

// Result records a run's observable progress. It is owned by the single
// ingestion goroutine; there is no concurrent mutation.
type Result struct {
	BatchesSent       int
	Shrinks           int
	RotationsObserved int
	// DocsPerBatch is the batch size in effect when the run ended; it
	// only ever decreases within a run.
	DocsPerBatch int
	Elapsed      time.Duration
	FinalTarget  string
	StopReason   StopReason
}
