package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/rollbench"
	"github.com/bft-labs/rollbench/internal/cliconfig"
)

const helpDescription = `
Drive an Elasticsearch cluster's bulk write path until index rollover has
been observed a target number of times.

Highlights:
  - Sizes batches against the cluster's http.max_content_length and
    shrinks them automatically on backpressure.
  - Provisions a quick lifecycle policy, templates, and the first write
    index (or data stream) before ingesting; reports on the index family
    afterwards.
  - Toggles the hot write index to fast mode (no refresh, async translog)
    and restores durable defaults after each rollover.
  - Configure via file ($HOME/.rollbench/config.toml), env (ROLLBENCH_*),
    or flags; edits to the config file mid-run retune the goal and caps.
`

var exampleUsage = strings.TrimSpace(`
  rollbench
  rollbench --es-url http://10.0.0.5:9200 --target-rollovers 3
  rollbench --mode datastream --data-stream bench-logs
  rollbench cleanup --mode alias
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger()

	loadConfig := func(cmd *cobra.Command) (string, error) {
		// Load config file first, then env, with explicit flags winning.
		cfgFile := cfgPath
		if cfgFile == "" {
			cfgFile = cliconfig.DefaultConfigPath()
		}

		changed := map[string]bool{}
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

		if cfgFile != "" && cliconfig.FileExists(cfgFile) {
			fc, err := cliconfig.LoadFileConfig(cfgFile)
			if err != nil {
				return "", fmt.Errorf("load config: %w", err)
			}
			if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
				return "", err
			}
		}

		if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
			return "", err
		}

		if err := cfg.Validate(); err != nil {
			return "", err
		}

		// Log configuration (masking the password)
		logCfg := cfg
		if len(logCfg.Password) > 0 {
			logCfg.Password = "*****"
		}
		log.Info().Interface("config", logCfg).Msg("configuration")

		return cfgFile, nil
	}

	root := &cobra.Command{
		Use:     "rollbench",
		Short:   "Observe index rollover under adaptive bulk-ingestion load",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := []rollbench.RunOption{rollbench.WithLogger(log)}
			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				opts = append(opts, rollbench.WithLiveTuning(cfgFile))
			}

			result, err := rollbench.Run(ctx, cfg, opts...)
			if err != nil {
				return err
			}
			if result.StopReason == rollbench.StopTimeCap {
				log.Warn().Int("rollovers", result.RotationsObserved).Msg("time cap hit before rollover goal")
			}
			return nil
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Tear down the bench's indices, templates, and policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return rollbench.Cleanup(ctx, cfg, rollbench.WithLogger(log))
		},
	}
	root.AddCommand(cleanupCmd)

	for _, fs := range []*pflag.FlagSet{root.Flags(), cleanupCmd.Flags()} {
		fs.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.rollbench/config.toml)")
		fs.StringVar(&cfg.ESURL, "es-url", cfg.ESURL, "backend base URL")
		fs.StringVar(&cfg.Username, "username", cfg.Username, "basic auth username")
		fs.StringVar(&cfg.Password, "password", cfg.Password, "basic auth password")
		fs.StringVar((*string)(&cfg.Mode), "mode", string(cfg.Mode), "rotation source: alias or datastream")

		fs.StringVar(&cfg.Alias, "alias", cfg.Alias, "rollover alias name (alias mode)")
		fs.StringVar(&cfg.IndexPrefix, "index-prefix", cfg.IndexPrefix, "index name prefix (default: <alias>-)")
		fs.StringVar(&cfg.PolicyName, "policy", cfg.PolicyName, "lifecycle policy name")
		fs.StringVar(&cfg.TemplateName, "template", cfg.TemplateName, "index template name")
		fs.StringVar(&cfg.DataStream, "data-stream", cfg.DataStream, "data stream name (datastream mode)")

		fs.IntVar(&cfg.PrimaryShards, "shards", cfg.PrimaryShards, "primary shards per index")
		fs.IntVar(&cfg.Replicas, "replicas", cfg.Replicas, "replicas per index")
		fs.IntVar(&cfg.RolloverMaxDocs, "rollover-max-docs", cfg.RolloverMaxDocs, "rollover doc-count trigger")
		fs.StringVar(&cfg.MaxPrimaryShardSize, "max-shard-size", cfg.MaxPrimaryShardSize, "rollover primary shard size trigger")
		fs.StringVar(&cfg.WarmAge, "warm-age", cfg.WarmAge, "lifecycle warm phase min age")
		fs.StringVar(&cfg.ColdAge, "cold-age", cfg.ColdAge, "lifecycle cold phase min age")
		fs.StringVar(&cfg.DeleteAge, "delete-age", cfg.DeleteAge, "lifecycle delete phase min age")
		fs.StringVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "refresh interval restored in durable mode")
	}

	root.Flags().IntVar(&cfg.RawPayloadBytes, "payload-bytes", cfg.RawPayloadBytes, "raw bytes per synthetic document before base64")
	root.Flags().Float64Var(&cfg.SafetyMargin, "safety-margin", cfg.SafetyMargin, "fraction of the request-size ceiling to use")
	root.Flags().IntVar(&cfg.PerDocOverhead, "per-doc-overhead", cfg.PerDocOverhead, "per-document bulk framing overhead in bytes")
	root.Flags().IntVar(&cfg.HardCap, "hard-cap", cfg.HardCap, "maximum docs per bulk regardless of the formula")
	root.Flags().IntVar(&cfg.TargetRollovers, "target-rollovers", cfg.TargetRollovers, "rollovers to observe before stopping")
	root.Flags().DurationVar(&cfg.MaxDuration, "max-duration", cfg.MaxDuration, "wall-clock cap for the run")
	root.Flags().DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "write-target poll interval")
	root.Flags().DurationVar(&cfg.ShrinkPause, "shrink-pause", cfg.ShrinkPause, "pause after shrinking the batch size")
	root.Flags().DurationVar(&cfg.SendPause, "send-pause", cfg.SendPause, "pause between accepted batches")
	root.Flags().Int64Var(&cfg.PayloadSeed, "seed", cfg.PayloadSeed, "payload seed (0 = derive from clock)")

	root.Flags().IntVar(&cfg.RetryMax, "retry-max", cfg.RetryMax, "max transport retries for overloaded/gateway statuses")
	root.Flags().DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "connection timeout")
	root.Flags().DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout")
	root.Flags().DurationVar(&cfg.RetryWaitMin, "retry-wait-min", cfg.RetryWaitMin, "minimum retry backoff")
	root.Flags().DurationVar(&cfg.RetryWaitMax, "retry-wait-max", cfg.RetryWaitMax, "maximum retry backoff")
	root.Flags().BoolVar(&cfg.SkipSetup, "skip-setup", cfg.SkipSetup, "skip provisioning")
	root.Flags().BoolVar(&cfg.SkipReport, "skip-report", cfg.SkipReport, "skip the final report")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("rollbench")
		os.Exit(1)
	}
}
