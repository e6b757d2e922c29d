// Package rollbench drives an Elasticsearch-compatible cluster's bulk
// write path at sustained volume until it has observed a target number of
// index rollovers, adapting batch sizes to the server's request-size
// limit along the way.
//
// Example usage:
//
//	cfg := rollbench.DefaultConfig()
//	cfg.ESURL = "http://localhost:9200"
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	result, err := rollbench.Run(context.Background(), cfg)
package rollbench

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bft-labs/rollbench/internal/bulk"
	"github.com/bft-labs/rollbench/internal/cleanup"
	"github.com/bft-labs/rollbench/internal/cliconfig"
	"github.com/bft-labs/rollbench/internal/es"
	"github.com/bft-labs/rollbench/internal/ingest"
	"github.com/bft-labs/rollbench/internal/provision"
	"github.com/bft-labs/rollbench/internal/report"
)

// Config holds the configuration for a bench run.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// Result records a run's observable progress and stop reason.
type Result = ingest.Result

// Mode selects the rotation source the bench runs against.
type Mode = cliconfig.Mode

// Rotation source modes.
const (
	ModeAlias      = cliconfig.ModeAlias
	ModeDataStream = cliconfig.ModeDataStream
)

// Run stop reasons.
const (
	StopGoal     = ingest.StopGoal
	StopTimeCap  = ingest.StopTimeCap
	StopCanceled = ingest.StopCanceled
	StopFatal    = ingest.StopFatal
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Logger returns the package-level zerolog logger used by the bench.
func Logger() zerolog.Logger {
	return cliconfig.Logger()
}

// RunOption customizes Run.
type RunOption func(*runOptions)

type runOptions struct {
	logger     *zerolog.Logger
	tuningPath string
}

// WithLogger overrides the logger used for the run.
func WithLogger(log zerolog.Logger) RunOption {
	return func(o *runOptions) { o.logger = &log }
}

// WithLiveTuning watches the given config file during the run and applies
// safe knob changes (rollover goal, wall-clock cap, intervals) at the
// loop's poll checkpoint. Lowering the goal acts as an early stop.
func WithLiveTuning(configPath string) RunOption {
	return func(o *runOptions) { o.tuningPath = configPath }
}

// Run provisions the environment (unless cfg.SkipSetup), ingests until the
// rollover goal or the wall-clock cap, and reports on what was built
// (unless cfg.SkipReport). cfg must have passed Validate.
func Run(ctx context.Context, cfg Config, opts ...RunOption) (Result, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	log := cliconfig.Logger()
	if o.logger != nil {
		log = *o.logger
	}

	client := newClient(cfg, log)
	spec := provisionSpec(cfg)

	if !cfg.SkipSetup {
		var err error
		if cfg.Mode == ModeDataStream {
			err = provision.EnsureDataStream(ctx, client, spec, log)
		} else {
			err = provision.EnsureAlias(ctx, client, spec, log)
		}
		if err != nil {
			return Result{}, err
		}
	}

	ceiling, found, err := client.MaxContentLength(ctx)
	if err != nil {
		return Result{}, err
	}
	if !found {
		ceiling = es.DefaultMaxContentLength
		log.Warn().Int64("ceiling_bytes", ceiling).Msg("cluster reported no request-size limit, using conservative default")
	}

	seed := cfg.PayloadSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	payload := bulk.Payload(cfg.RawPayloadBytes, seed)

	doc := bulk.Document{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   "bench",
		Level:     "info",
		RunID:     uuid.NewString(),
		Message:   payload,
	}

	loopCfg := ingest.Config{
		WriteName:    cfg.WriteName(),
		Action:       bulk.ActionIndex,
		Doc:          doc,
		AvgDocBytes:  int64(len(payload)),
		CeilingBytes: ceiling,
		Sizer: bulk.Sizer{
			SafetyMargin:   cfg.SafetyMargin,
			PerDocOverhead: int64(cfg.PerDocOverhead),
			HardCap:        cfg.HardCap,
		},
		TargetRollovers: cfg.TargetRollovers,
		MaxDuration:     cfg.MaxDuration,
		PollInterval:    cfg.PollInterval,
		ShrinkPause:     cfg.ShrinkPause,
		SendPause:       cfg.SendPause,
	}

	var source es.RotationSource
	loopOpts := []ingest.Option{ingest.WithLogger(log)}
	if cfg.Mode == ModeDataStream {
		loopCfg.Action = bulk.ActionCreate
		source = es.NewDataStreamSource(client, cfg.DataStream)
	} else {
		source = es.NewAliasSource(client, cfg.Alias)
		loopOpts = append(loopOpts, ingest.WithEnsure(func(ctx context.Context, index string) error {
			return client.EnsureManaged(ctx, index, cfg.PolicyName, cfg.Alias)
		}))
	}

	if o.tuningPath != "" {
		watcher := cliconfig.NewTuningWatcher(o.tuningPath, cliconfig.TuningFromConfig(cfg), log)
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go watcher.Run(wctx)
		loopOpts = append(loopOpts, ingest.WithTuner(func() (ingest.Tuning, bool) {
			t, ok := watcher.Latest()
			if !ok {
				return ingest.Tuning{}, false
			}
			return ingest.Tuning{
				TargetRollovers: t.TargetRollovers,
				MaxDuration:     t.MaxDuration,
				PollInterval:    t.PollInterval,
				ShrinkPause:     t.ShrinkPause,
				SendPause:       t.SendPause,
			}, true
		}))
	}

	speed := es.NewSpeedController(client, cfg.RefreshInterval)
	loop := ingest.New(loopCfg, client, source, speed, bulk.NewGzipCodec(), loopOpts...)

	result, err := loop.Run(ctx)
	if err != nil {
		return result, err
	}

	log.Info().
		Int("batches", result.BatchesSent).
		Int("rollovers", result.RotationsObserved).
		Int("docs_per_batch", result.DocsPerBatch).
		Dur("elapsed", result.Elapsed).
		Str("stop_reason", string(result.StopReason)).
		Msg("ingest finished")

	if !cfg.SkipReport {
		if cfg.Mode == ModeDataStream {
			report.DataStream(ctx, client, spec, log)
		} else {
			report.Alias(ctx, client, spec, log)
		}
	}
	return result, nil
}

// Cleanup tears down the bench artifacts for the configured mode.
func Cleanup(ctx context.Context, cfg Config, opts ...RunOption) error {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	log := cliconfig.Logger()
	if o.logger != nil {
		log = *o.logger
	}

	client := newClient(cfg, log)
	spec := provisionSpec(cfg)
	if cfg.Mode == ModeDataStream {
		return cleanup.DataStream(ctx, client, spec, log)
	}
	return cleanup.Alias(ctx, client, spec, log)
}

func newClient(cfg Config, log zerolog.Logger) *es.Client {
	return es.NewClient(es.Config{
		BaseURL:        cfg.ESURL,
		Username:       cfg.Username,
		Password:       cfg.Password,
		RetryMax:       cfg.RetryMax,
		RetryWaitMin:   cfg.RetryWaitMin,
		RetryWaitMax:   cfg.RetryWaitMax,
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         log,
	})
}

func provisionSpec(cfg Config) provision.Spec {
	return provision.Spec{
		Alias:        cfg.Alias,
		IndexPrefix:  cfg.IndexPrefix,
		FirstIndex:   cfg.FirstIndex(),
		PolicyName:   cfg.PolicyName,
		TemplateName: cfg.TemplateName,
		DataStream:   cfg.DataStream,

		PrimaryShards:       cfg.PrimaryShards,
		Replicas:            cfg.Replicas,
		MaxPrimaryShardSize: cfg.MaxPrimaryShardSize,
		RolloverMaxDocs:     cfg.RolloverMaxDocs,
		WarmAge:             cfg.WarmAge,
		ColdAge:             cfg.ColdAge,
		DeleteAge:           cfg.DeleteAge,
		RefreshInterval:     cfg.RefreshInterval,
	}
}
