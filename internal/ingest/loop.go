// Package ingest drives the backend's bulk write path until a target
// number of rollovers has been observed or a wall-clock cap fires.
//
// The loop is strictly sequential: one in-flight send, rotation polling
// between sends, all mutable state owned by the single goroutine. That
// ordering guarantees a rotation is never attributed to the wrong batch
// and a speed toggle is never applied to a retired target.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/rollbench/internal/bulk"
	"github.com/bft-labs/rollbench/internal/es"
)

// Transport sends one encoded batch and classifies the outcome.
type Transport interface {
	Bulk(ctx context.Context, target string, body []byte) (es.BulkOutcome, error)
}

// SpeedSetter toggles a write target between fast and durable modes.
type SpeedSetter interface {
	SetFast(ctx context.Context, index string) error
	SetDurable(ctx context.Context, index string) error
}

// Tuning holds the knobs the loop re-reads at its poll checkpoint.
type Tuning struct {
	TargetRollovers int
	MaxDuration     time.Duration
	PollInterval    time.Duration
	ShrinkPause     time.Duration
	SendPause       time.Duration
}

// Config parameterizes a run.
type Config struct {
	// WriteName is the logical name bulk sends are addressed to (the
	// alias or data stream, never a physical index).
	WriteName string
	// Action is the bulk op per document: "index" for aliases, "create"
	// for data streams.
	Action string
	// Doc is the document template repeated in every batch.
	Doc bulk.Document
	// AvgDocBytes is the serialized size of Doc's message payload.
	AvgDocBytes int64
	// CeilingBytes is the discovered server request-size limit.
	CeilingBytes int64
	Sizer        bulk.Sizer

	TargetRollovers int
	MaxDuration     time.Duration
	PollInterval    time.Duration
	ShrinkPause     time.Duration
	SendPause       time.Duration
	// ProgressEvery is the accepted-batch interval between progress
	// lines. Defaults to 10.
	ProgressEvery int
}

// Option customizes a Loop.
type Option func(*Loop)

// WithLogger sets the loop's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// WithEnsure installs a managed-settings check run against the starting
// target and every newly rotated-in target. Alias-mode targets need it;
// data-stream backing indices inherit lifecycle settings from their
// template.
func WithEnsure(ensure func(ctx context.Context, index string) error) Option {
	return func(l *Loop) { l.ensure = ensure }
}

// WithTuner installs a live-tuning source consulted at each poll
// checkpoint. A caller wanting early termination lowers the goal or cap.
func WithTuner(tuner func() (Tuning, bool)) Option {
	return func(l *Loop) { l.tuner = tuner }
}

// WithClock overrides time functions, for tests.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(l *Loop) {
		l.now = now
		l.sleep = sleep
	}
}

// Loop is the adaptive bulk-ingestion controller.
type Loop struct {
	cfg       Config
	transport Transport
	source    es.RotationSource
	speed     SpeedSetter
	codec     bulk.Codec
	ensure    func(ctx context.Context, index string) error
	tuner     func() (Tuning, bool)
	log       zerolog.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a Loop.
func New(cfg Config, transport Transport, source es.RotationSource, speed SpeedSetter, codec bulk.Codec, opts ...Option) *Loop {
	l := &Loop{
		cfg:       cfg,
		transport: transport,
		source:    source,
		speed:     speed,
		codec:     codec,
		log:       zerolog.Nop(),
		now:       time.Now,
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes the ingestion loop until the rollover goal, the wall-clock
// cap, or cancellation ends it. The returned error is non-nil only for
// fatal conditions; hitting the time cap is a reported reason, not a
// failure.
func (l *Loop) Run(ctx context.Context) (res Result, err error) {
	start := l.now()
	var target string

	defer func() {
		res.Elapsed = l.now().Sub(start)
		res.FinalTarget = target
		if target == "" {
			return
		}
		// Restore durable mode on whatever target is current, whichever
		// terminal condition fired. A fresh context survives cancellation.
		rctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if derr := l.speed.SetDurable(rctx, target); derr != nil {
			l.log.Warn().Err(derr).Str("index", target).Msg("durable restore note")
		}
	}()

	target, err = l.source.ResolveWriteTarget(ctx)
	if err != nil {
		res.StopReason = StopFatal
		return res, fmt.Errorf("resolve write target: %w", err)
	}
	if l.ensure != nil {
		if err := l.ensure(ctx, target); err != nil {
			res.StopReason = StopFatal
			return res, fmt.Errorf("ensure managed %s: %w", target, err)
		}
	}
	if err := l.speed.SetFast(ctx, target); err != nil {
		l.log.Warn().Err(err).Str("index", target).Msg("fast mode note")
	}

	docs := l.cfg.Sizer.DocsPerBatch(l.cfg.AvgDocBytes, l.cfg.CeilingBytes)
	res.DocsPerBatch = docs

	goal := l.cfg.TargetRollovers
	maxDur := l.cfg.MaxDuration
	poll := l.cfg.PollInterval
	shrinkPause := l.cfg.ShrinkPause
	sendPause := l.cfg.SendPause
	progressEvery := l.cfg.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = 10
	}

	l.log.Info().
		Str("target", target).
		Int("docs_per_batch", docs).
		Int64("ceiling_bytes", l.cfg.CeilingBytes).
		Int64("avg_doc_bytes", l.cfg.AvgDocBytes).
		Int("target_rollovers", goal).
		Msg("ingest starting")

	lastPoll := start

	for {
		raw, err := bulk.EncodeBulk(l.cfg.Action, l.cfg.Doc, docs)
		if err != nil {
			res.StopReason = StopFatal
			return res, err
		}
		body, err := l.codec.Compress(raw)
		if err != nil {
			res.StopReason = StopFatal
			return res, fmt.Errorf("compress batch: %w", err)
		}

		outcome, err := l.transport.Bulk(ctx, l.cfg.WriteName, body)
		switch outcome {
		case es.BulkShrink:
			// Same logical send, smaller batch; nothing counted as progress.
			docs = bulk.Halve(docs)
			res.DocsPerBatch = docs
			res.Shrinks++
			l.log.Warn().Int("docs_per_batch", docs).Msg("shrinking batch after backpressure")
			l.sleep(shrinkPause)
			continue
		case es.BulkFatal:
			res.StopReason = StopFatal
			return res, err
		}

		res.BatchesSent++
		if res.BatchesSent%progressEvery == 0 {
			preGzip := float64(docs) * float64(l.cfg.AvgDocBytes+l.cfg.Sizer.PerDocOverhead) / (1 << 20)
			l.log.Info().
				Int("batches", res.BatchesSent).
				Int("docs_per_batch", docs).
				Float64("pre_gzip_mb", preGzip).
				Msg("ingest progress")
		}
		l.sleep(sendPause)

		now := l.now()
		if now.Sub(lastPoll) < poll {
			continue
		}
		lastPoll = now

		// Poll checkpoint: live tuning, rotation, cancellation, time cap.
		if l.tuner != nil {
			if t, ok := l.tuner(); ok {
				goal = t.TargetRollovers
				maxDur = t.MaxDuration
				poll = t.PollInterval
				shrinkPause = t.ShrinkPause
				sendPause = t.SendPause
			}
		}

		current, err := l.source.ResolveWriteTarget(ctx)
		if err != nil {
			res.StopReason = StopFatal
			return res, fmt.Errorf("resolve write target: %w", err)
		}
		if current != target {
			res.RotationsObserved++
			l.log.Info().
				Int("rollover", res.RotationsObserved).
				Str("from", target).
				Str("to", current).
				Msg("rollover observed")

			if err := l.speed.SetDurable(ctx, target); err != nil {
				l.log.Warn().Err(err).Str("index", target).Msg("durable mode note")
			}
			if l.ensure != nil {
				if err := l.ensure(ctx, current); err != nil {
					res.StopReason = StopFatal
					return res, fmt.Errorf("ensure managed %s: %w", current, err)
				}
			}
			if err := l.speed.SetFast(ctx, current); err != nil {
				l.log.Warn().Err(err).Str("index", current).Msg("fast mode note")
			}
			target = current

			if res.RotationsObserved >= goal {
				res.StopReason = StopGoal
				l.log.Info().Int("rollovers", res.RotationsObserved).Msg("rollover goal reached, stopping ingest")
				return res, nil
			}
		}

		if ctx.Err() != nil {
			res.StopReason = StopCanceled
			return res, nil
		}
		if now.Sub(start) > maxDur {
			res.StopReason = StopTimeCap
			l.log.Info().Dur("elapsed", now.Sub(start)).Msg("time cap reached, stopping ingest")
			return res, nil
		}
	}
}
