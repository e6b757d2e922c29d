package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/rollbench/internal/bulk"
	"github.com/bft-labs/rollbench/internal/es"
)

// nopCodec keeps loop tests about control flow, not compression.
type nopCodec struct{}

func (nopCodec) Compress(data []byte) ([]byte, error)   { return data, nil }
func (nopCodec) Decompress(data []byte) ([]byte, error) { return data, nil }

type sendResult struct {
	outcome es.BulkOutcome
	err     error
}

// fakeTransport replays a scripted sequence of outcomes, then accepts
// everything.
type fakeTransport struct {
	script []sendResult
	sends  int
	bodies []int
}

func (f *fakeTransport) Bulk(ctx context.Context, target string, body []byte) (es.BulkOutcome, error) {
	f.bodies = append(f.bodies, len(body))
	i := f.sends
	f.sends++
	if i < len(f.script) {
		return f.script[i].outcome, f.script[i].err
	}
	return es.BulkAccepted, nil
}

// fakeSource returns scripted write targets, repeating the last one.
type fakeSource struct {
	targets  []string
	resolves int
	err      error
}

func (f *fakeSource) ResolveWriteTarget(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	i := f.resolves
	f.resolves++
	if i >= len(f.targets) {
		i = len(f.targets) - 1
	}
	return f.targets[i], nil
}

type speedCall struct {
	mode  string
	index string
}

type fakeSpeed struct {
	calls []speedCall
	err   error
}

func (f *fakeSpeed) SetFast(ctx context.Context, index string) error {
	f.calls = append(f.calls, speedCall{"fast", index})
	return f.err
}

func (f *fakeSpeed) SetDurable(ctx context.Context, index string) error {
	f.calls = append(f.calls, speedCall{"durable", index})
	return f.err
}

// testClock advances a fake time by step on every reading and makes
// sleeps instantaneous.
type testClock struct {
	t    time.Time
	step time.Duration
}

func (c *testClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func (c *testClock) sleep(time.Duration) {}

func testConfig() Config {
	return Config{
		WriteName:    "bench-rollover",
		Action:       bulk.ActionIndex,
		Doc:          bulk.Document{Timestamp: "2026-01-01T00:00:00Z", Service: "bench", Level: "info", Message: "x"},
		AvgDocBytes:  2_800_000,
		CeilingBytes: 100_000_000,
		Sizer:        bulk.Sizer{SafetyMargin: 0.85, PerDocOverhead: 64, HardCap: 40},

		TargetRollovers: 5,
		MaxDuration:     time.Hour,
		// Zero poll interval: every accepted send reaches the checkpoint.
		PollInterval: 0,
		ShrinkPause:  200 * time.Millisecond,
		SendPause:    20 * time.Millisecond,
	}
}

func newTestLoop(cfg Config, tr Transport, src es.RotationSource, sp SpeedSetter, opts ...Option) *Loop {
	clock := &testClock{t: time.Unix(1_700_000_000, 0), step: time.Millisecond}
	opts = append(opts, WithClock(clock.now, clock.sleep))
	return New(cfg, tr, src, sp, nopCodec{}, opts...)
}

func TestRunReachesGoal(t *testing.T) {
	transport := &fakeTransport{}
	// Five target changes, one per poll after the first resolve.
	source := &fakeSource{targets: []string{"i-1", "i-2", "i-3", "i-4", "i-5", "i-6"}}
	speed := &fakeSpeed{}

	cfg := testConfig()
	loop := newTestLoop(cfg, transport, source, speed)

	res, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != StopGoal {
		t.Fatalf("stop reason = %s, want goal", res.StopReason)
	}
	if res.RotationsObserved != 5 {
		t.Fatalf("rotations = %d, want 5", res.RotationsObserved)
	}
	if res.BatchesSent != 5 {
		t.Fatalf("batches = %d, want 5 (one per poll)", res.BatchesSent)
	}
	if res.FinalTarget != "i-6" {
		t.Fatalf("final target = %q, want i-6", res.FinalTarget)
	}
}

func TestRunBatchSizeFromCeiling(t *testing.T) {
	transport := &fakeTransport{}
	source := &fakeSource{targets: []string{"i-1"}}
	cfg := testConfig()
	cfg.MaxDuration = 0 // stop at the first checkpoint

	res, err := newTestLoop(cfg, transport, source, &fakeSpeed{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 100 MB ceiling at 0.85 margin over 2.8 MB docs fits 30 per batch.
	if res.DocsPerBatch != 30 {
		t.Fatalf("docs per batch = %d, want 30", res.DocsPerBatch)
	}
}

func TestRunShrinksOnBackpressure(t *testing.T) {
	transport := &fakeTransport{script: []sendResult{
		{outcome: es.BulkShrink},
		{outcome: es.BulkShrink},
		{outcome: es.BulkShrink},
	}}
	source := &fakeSource{targets: []string{"i-1"}}

	cfg := testConfig()
	cfg.AvgDocBytes = 1024 // start at the hard cap of 40
	cfg.MaxDuration = 0

	res, err := newTestLoop(cfg, transport, source, &fakeSpeed{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Shrinks != 3 {
		t.Fatalf("shrinks = %d, want 3", res.Shrinks)
	}
	// 40 -> 20 -> 10 -> 5, and the shrunk sends counted no progress.
	if res.DocsPerBatch != 5 {
		t.Fatalf("docs per batch = %d, want 5", res.DocsPerBatch)
	}
	if res.BatchesSent != 1 {
		t.Fatalf("batches = %d, want 1 accepted send", res.BatchesSent)
	}
	// Each retry carried fewer docs than the one before.
	for i := 1; i < len(transport.bodies); i++ {
		if transport.bodies[i] >= transport.bodies[i-1] {
			t.Fatalf("send %d body grew: %v", i, transport.bodies)
		}
	}
}

func TestRunShrinkFloorsAtOne(t *testing.T) {
	shrinks := make([]sendResult, 10)
	for i := range shrinks {
		shrinks[i] = sendResult{outcome: es.BulkShrink}
	}
	transport := &fakeTransport{script: shrinks}
	source := &fakeSource{targets: []string{"i-1"}}

	cfg := testConfig()
	cfg.AvgDocBytes = 1024
	cfg.MaxDuration = 0

	res, err := newTestLoop(cfg, transport, source, &fakeSpeed{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.DocsPerBatch != 1 {
		t.Fatalf("docs per batch = %d, want floor of 1", res.DocsPerBatch)
	}
}

func TestRunFatalTransport(t *testing.T) {
	fatalErr := errors.New("mapping broken")
	transport := &fakeTransport{script: []sendResult{{outcome: es.BulkFatal, err: fatalErr}}}
	source := &fakeSource{targets: []string{"i-1"}}
	speed := &fakeSpeed{}

	res, err := newTestLoop(testConfig(), transport, source, speed).Run(context.Background())
	if !errors.Is(err, fatalErr) {
		t.Fatalf("err = %v, want %v", err, fatalErr)
	}
	if res.StopReason != StopFatal {
		t.Fatalf("stop reason = %s, want fatal", res.StopReason)
	}
	// Even a fatal exit restores durable mode on the current target.
	last := speed.calls[len(speed.calls)-1]
	if last.mode != "durable" || last.index != "i-1" {
		t.Fatalf("last speed call = %+v, want durable i-1", last)
	}
}

func TestRunSpeedTogglesAcrossRotation(t *testing.T) {
	transport := &fakeTransport{}
	source := &fakeSource{targets: []string{"i-1", "i-2"}}
	speed := &fakeSpeed{}

	cfg := testConfig()
	cfg.TargetRollovers = 1

	res, err := newTestLoop(cfg, transport, source, speed).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != StopGoal {
		t.Fatalf("stop reason = %s, want goal", res.StopReason)
	}

	want := []speedCall{
		{"fast", "i-1"},
		{"durable", "i-1"},
		{"fast", "i-2"},
		{"durable", "i-2"}, // deferred restore on exit
	}
	if len(speed.calls) != len(want) {
		t.Fatalf("speed calls = %+v, want %+v", speed.calls, want)
	}
	for i := range want {
		if speed.calls[i] != want[i] {
			t.Fatalf("speed call %d = %+v, want %+v", i, speed.calls[i], want[i])
		}
	}
}

func TestRunStableTargetCountsNothing(t *testing.T) {
	transport := &fakeTransport{}
	source := &fakeSource{targets: []string{"i-1"}}

	cfg := testConfig()
	cfg.MaxDuration = 50 * time.Millisecond

	res, err := newTestLoop(cfg, transport, source, &fakeSpeed{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != StopTimeCap {
		t.Fatalf("stop reason = %s, want timecap", res.StopReason)
	}
	if res.RotationsObserved != 0 {
		t.Fatalf("rotations = %d, want 0 for a stable target", res.RotationsObserved)
	}
	if res.BatchesSent == 0 {
		t.Fatal("no batches sent before the cap")
	}
}

func TestRunCanceledContext(t *testing.T) {
	transport := &fakeTransport{}
	source := &fakeSource{targets: []string{"i-1"}}

	// Already-canceled context: the loop notices at its first checkpoint.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestLoop(testConfig(), transport, source, &fakeSpeed{}).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != StopCanceled {
		t.Fatalf("stop reason = %s, want canceled", res.StopReason)
	}
}

func TestRunEnsureRunsOnStartAndRotation(t *testing.T) {
	transport := &fakeTransport{}
	source := &fakeSource{targets: []string{"i-1", "i-2"}}

	var ensured []string
	ensure := func(ctx context.Context, index string) error {
		ensured = append(ensured, index)
		return nil
	}

	cfg := testConfig()
	cfg.TargetRollovers = 1

	_, err := newTestLoop(cfg, transport, source, &fakeSpeed{}, WithEnsure(ensure)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ensured) != 2 || ensured[0] != "i-1" || ensured[1] != "i-2" {
		t.Fatalf("ensured = %v, want [i-1 i-2]", ensured)
	}
}

func TestRunResolveErrorIsFatal(t *testing.T) {
	transport := &fakeTransport{}
	source := &fakeSource{err: errors.New("cluster down")}

	res, err := newTestLoop(testConfig(), transport, source, &fakeSpeed{}).Run(context.Background())
	if err == nil {
		t.Fatal("expected error from failed resolve")
	}
	if res.StopReason != StopFatal {
		t.Fatalf("stop reason = %s, want fatal", res.StopReason)
	}
	if transport.sends != 0 {
		t.Fatalf("sends = %d, want 0", transport.sends)
	}
}

func TestRunTunerLowersGoalMidRun(t *testing.T) {
	transport := &fakeTransport{}
	source := &fakeSource{targets: []string{"i-1", "i-2"}}

	applied := false
	tuner := func() (Tuning, bool) {
		if applied {
			return Tuning{}, false
		}
		applied = true
		return Tuning{
			TargetRollovers: 1,
			MaxDuration:     time.Hour,
			PollInterval:    0,
			ShrinkPause:     time.Millisecond,
			SendPause:       time.Millisecond,
		}, true
	}

	cfg := testConfig()
	cfg.TargetRollovers = 5

	res, err := newTestLoop(cfg, transport, source, &fakeSpeed{}, WithTuner(tuner)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != StopGoal {
		t.Fatalf("stop reason = %s, want goal after tuned-down target", res.StopReason)
	}
	if res.RotationsObserved != 1 {
		t.Fatalf("rotations = %d, want 1", res.RotationsObserved)
	}
}
