package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	ESURL    string `toml:"es_url"`
	Username string `toml:"username"`
	Password string `toml:"password"`

	Mode string `toml:"mode"`

	Alias        string `toml:"alias"`
	IndexPrefix  string `toml:"index_prefix"`
	PolicyName   string `toml:"policy_name"`
	TemplateName string `toml:"template_name"`
	DataStream   string `toml:"data_stream"`

	PrimaryShards       int    `toml:"primary_shards"`
	Replicas            int    `toml:"replicas"`
	MaxPrimaryShardSize string `toml:"max_primary_shard_size"`
	RolloverMaxDocs     int    `toml:"rollover_max_docs"`
	WarmAge             string `toml:"warm_age"`
	ColdAge             string `toml:"cold_age"`
	DeleteAge           string `toml:"delete_age"`
	RefreshInterval     string `toml:"refresh_interval"`

	RawPayloadBytes int     `toml:"payload_bytes"`
	SafetyMargin    float64 `toml:"safety_margin"`
	PerDocOverhead  int     `toml:"per_doc_overhead"`
	HardCap         int     `toml:"hard_cap"`
	TargetRollovers int     `toml:"target_rollovers"`
	MaxDuration     string  `toml:"max_duration"`
	PollInterval    string  `toml:"poll_interval"`
	ShrinkPause     string  `toml:"shrink_pause"`
	SendPause       string  `toml:"send_pause"`
	PayloadSeed     int64   `toml:"payload_seed"`

	RetryMax       int    `toml:"retry_max"`
	ConnectTimeout string `toml:"connect_timeout"`
	RequestTimeout string `toml:"request_timeout"`
	RetryWaitMin   string `toml:"retry_wait_min"`
	RetryWaitMax   string `toml:"retry_wait_max"`

	SkipSetup  *bool `toml:"skip_setup"`
	SkipReport *bool `toml:"skip_report"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.rollbench/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".rollbench", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("es-url", fc.ESURL, &cfg.ESURL)
	s.setString("username", fc.Username, &cfg.Username)
	s.setString("password", fc.Password, &cfg.Password)

	var mode string
	s.setString("mode", fc.Mode, &mode)
	if mode != "" {
		cfg.Mode = Mode(mode)
	}

	s.setString("alias", fc.Alias, &cfg.Alias)
	s.setString("index-prefix", fc.IndexPrefix, &cfg.IndexPrefix)
	s.setString("policy", fc.PolicyName, &cfg.PolicyName)
	s.setString("template", fc.TemplateName, &cfg.TemplateName)
	s.setString("data-stream", fc.DataStream, &cfg.DataStream)

	s.setInt("shards", fc.PrimaryShards, &cfg.PrimaryShards)
	if fc.Replicas > 0 && !changed["replicas"] {
		cfg.Replicas = fc.Replicas
	}
	s.setString("max-shard-size", fc.MaxPrimaryShardSize, &cfg.MaxPrimaryShardSize)
	s.setInt("rollover-max-docs", fc.RolloverMaxDocs, &cfg.RolloverMaxDocs)
	s.setString("warm-age", fc.WarmAge, &cfg.WarmAge)
	s.setString("cold-age", fc.ColdAge, &cfg.ColdAge)
	s.setString("delete-age", fc.DeleteAge, &cfg.DeleteAge)
	s.setString("refresh-interval", fc.RefreshInterval, &cfg.RefreshInterval)

	s.setInt("payload-bytes", fc.RawPayloadBytes, &cfg.RawPayloadBytes)
	s.setFloat("safety-margin", fc.SafetyMargin, &cfg.SafetyMargin)
	s.setInt("per-doc-overhead", fc.PerDocOverhead, &cfg.PerDocOverhead)
	s.setInt("hard-cap", fc.HardCap, &cfg.HardCap)
	s.setInt("target-rollovers", fc.TargetRollovers, &cfg.TargetRollovers)
	if fc.PayloadSeed != 0 && !changed["seed"] {
		cfg.PayloadSeed = fc.PayloadSeed
	}

	if err := s.setDuration("max-duration", fc.MaxDuration, &cfg.MaxDuration); err != nil {
		return err
	}
	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("shrink-pause", fc.ShrinkPause, &cfg.ShrinkPause); err != nil {
		return err
	}
	if err := s.setDuration("send-pause", fc.SendPause, &cfg.SendPause); err != nil {
		return err
	}

	s.setInt("retry-max", fc.RetryMax, &cfg.RetryMax)
	if err := s.setDuration("connect-timeout", fc.ConnectTimeout, &cfg.ConnectTimeout); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.RequestTimeout, &cfg.RequestTimeout); err != nil {
		return err
	}
	if err := s.setDuration("retry-wait-min", fc.RetryWaitMin, &cfg.RetryWaitMin); err != nil {
		return err
	}
	if err := s.setDuration("retry-wait-max", fc.RetryWaitMax, &cfg.RetryWaitMax); err != nil {
		return err
	}

	s.setBool("skip-setup", fc.SkipSetup, &cfg.SkipSetup)
	s.setBool("skip-report", fc.SkipReport, &cfg.SkipReport)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
