package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (ROLLBENCH_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("es-url", os.Getenv("ROLLBENCH_ES_URL"), &cfg.ESURL)
	s.setString("username", os.Getenv("ROLLBENCH_USERNAME"), &cfg.Username)
	s.setString("password", os.Getenv("ROLLBENCH_PASSWORD"), &cfg.Password)

	var mode string
	s.setString("mode", os.Getenv("ROLLBENCH_MODE"), &mode)
	if mode != "" {
		cfg.Mode = Mode(mode)
	}

	s.setString("alias", os.Getenv("ROLLBENCH_ALIAS"), &cfg.Alias)
	s.setString("index-prefix", os.Getenv("ROLLBENCH_INDEX_PREFIX"), &cfg.IndexPrefix)
	s.setString("policy", os.Getenv("ROLLBENCH_POLICY"), &cfg.PolicyName)
	s.setString("template", os.Getenv("ROLLBENCH_TEMPLATE"), &cfg.TemplateName)
	s.setString("data-stream", os.Getenv("ROLLBENCH_DATA_STREAM"), &cfg.DataStream)

	if err := s.setIntFromString("payload-bytes", os.Getenv("ROLLBENCH_PAYLOAD_BYTES"), &cfg.RawPayloadBytes); err != nil {
		return err
	}
	if err := s.setFloatFromString("safety-margin", os.Getenv("ROLLBENCH_SAFETY_MARGIN"), &cfg.SafetyMargin); err != nil {
		return err
	}
	if err := s.setIntFromString("hard-cap", os.Getenv("ROLLBENCH_HARD_CAP"), &cfg.HardCap); err != nil {
		return err
	}
	if err := s.setIntFromString("target-rollovers", os.Getenv("ROLLBENCH_TARGET_ROLLOVERS"), &cfg.TargetRollovers); err != nil {
		return err
	}
	if err := s.setInt64FromString("seed", os.Getenv("ROLLBENCH_PAYLOAD_SEED"), &cfg.PayloadSeed); err != nil {
		return err
	}
	if err := s.setIntFromString("retry-max", os.Getenv("ROLLBENCH_RETRY_MAX"), &cfg.RetryMax); err != nil {
		return err
	}

	if err := s.setDuration("max-duration", os.Getenv("ROLLBENCH_MAX_DURATION"), &cfg.MaxDuration); err != nil {
		return err
	}
	if err := s.setDuration("poll", os.Getenv("ROLLBENCH_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("ROLLBENCH_REQUEST_TIMEOUT"), &cfg.RequestTimeout); err != nil {
		return err
	}
	if err := s.setDuration("connect-timeout", os.Getenv("ROLLBENCH_CONNECT_TIMEOUT"), &cfg.ConnectTimeout); err != nil {
		return err
	}

	s.setBoolFromString("skip-setup", os.Getenv("ROLLBENCH_SKIP_SETUP"), &cfg.SkipSetup)
	s.setBoolFromString("skip-report", os.Getenv("ROLLBENCH_SKIP_REPORT"), &cfg.SkipReport)

	return nil
}
