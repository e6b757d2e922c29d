package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultESURL is the default backend endpoint for the bench.
const DefaultESURL = "http://localhost:9200"

// Mode selects the rotation source the bench runs against.
type Mode string

const (
	// ModeAlias rolls an alias over a family of prefixed indices via ILM.
	ModeAlias Mode = "alias"
	// ModeDataStream rolls a data stream's backing indices via ILM.
	ModeDataStream Mode = "datastream"
)

// Config holds the full configuration for a bench run.
type Config struct {
	ESURL    string
	Username string
	Password string

	Mode Mode

	// Alias-mode naming.
	Alias        string
	IndexPrefix  string
	PolicyName   string
	TemplateName string

	// Data-stream-mode naming. Component template names are derived
	// from the stream name (<stream>@settings, <stream>@mappings).
	DataStream string

	// Provisioned index shape.
	PrimaryShards       int
	Replicas            int
	MaxPrimaryShardSize string
	RolloverMaxDocs     int
	WarmAge             string
	ColdAge             string
	DeleteAge           string
	RefreshInterval     string

	// Ingest knobs.
	RawPayloadBytes int
	SafetyMargin    float64
	PerDocOverhead  int
	HardCap         int
	TargetRollovers int
	MaxDuration     time.Duration
	PollInterval    time.Duration
	ShrinkPause     time.Duration
	SendPause       time.Duration
	PayloadSeed     int64

	// Transport.
	RetryMax       int
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration

	// Flow control.
	SkipSetup  bool
	SkipReport bool
}

// DefaultConfig returns a Config with default values. Running with no
// arguments targets a local cluster and observes five rollovers.
func DefaultConfig() Config {
	return Config{
		ESURL: DefaultESURL,

		Mode: ModeAlias,

		Alias:        "bench-rollover",
		PolicyName:   "bench-quick",
		TemplateName: "it-bench-rollover",
		DataStream:   "bench-logs",

		PrimaryShards:       3,
		Replicas:            1,
		MaxPrimaryShardSize: "50gb",
		RolloverMaxDocs:     200,
		WarmAge:             "2m",
		ColdAge:             "4m",
		DeleteAge:           "77m",
		RefreshInterval:     "30s",

		RawPayloadBytes: 2 << 20,
		SafetyMargin:    0.85,
		PerDocOverhead:  64,
		HardCap:         40,
		TargetRollovers: 5,
		MaxDuration:     60 * time.Minute,
		PollInterval:    5 * time.Second,
		ShrinkPause:     200 * time.Millisecond,
		SendPause:       20 * time.Millisecond,

		RetryMax:       6,
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 600 * time.Second,
		RetryWaitMin:   500 * time.Millisecond,
		RetryWaitMax:   10 * time.Second,

		Password: os.Getenv("ROLLBENCH_PASSWORD"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.ESURL == "" {
		c.ESURL = DefaultESURL
	}
	// Ensure no trailing slash
	c.ESURL = strings.TrimRight(c.ESURL, "/")

	switch c.Mode {
	case ModeAlias, ModeDataStream:
	case "":
		c.Mode = ModeAlias
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeAlias, ModeDataStream, c.Mode)
	}

	if c.Mode == ModeAlias && c.Alias == "" {
		return fmt.Errorf("alias is required in alias mode")
	}
	if c.Mode == ModeDataStream && c.DataStream == "" {
		return fmt.Errorf("data-stream is required in datastream mode")
	}
	if c.IndexPrefix == "" {
		c.IndexPrefix = c.Alias + "-"
	}

	if c.SafetyMargin <= 0 || c.SafetyMargin >= 1 {
		return fmt.Errorf("safety margin must be in (0,1), got %v", c.SafetyMargin)
	}
	if c.HardCap <= 0 {
		return fmt.Errorf("hard cap must be positive, got %d", c.HardCap)
	}
	if c.RawPayloadBytes <= 0 {
		return fmt.Errorf("payload bytes must be positive, got %d", c.RawPayloadBytes)
	}
	if c.TargetRollovers <= 0 {
		return fmt.Errorf("target rollovers must be positive, got %d", c.TargetRollovers)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("max duration must be positive")
	}
	if c.PerDocOverhead < 0 {
		return fmt.Errorf("per-doc overhead must not be negative, got %d", c.PerDocOverhead)
	}

	return nil
}

// FirstIndex returns the name of the initial write index in alias mode.
func (c *Config) FirstIndex() string {
	return c.IndexPrefix + "000001"
}

// WriteName returns the logical name bulk writes are addressed to.
func (c *Config) WriteName() string {
	if c.Mode == ModeDataStream {
		return c.DataStream
	}
	return c.Alias
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses a string to int64 and sets the destination.
// Zero and negative values are applied as-is: a payload seed of zero
// means "derive from the clock".
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
