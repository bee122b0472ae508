package config

// Default returns the configuration used for omitted fields. Parsed files
// are decoded on top of it.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Storage:   StorageConfig{Driver: "file", Path: "./trackify_store.json"},
		Probe:     ProbeConfig{Backend: "http", Timeout: "30s"},
		Location:  LocationConfig{Permission: "denied", Provider: "none"},
		Retention: RetentionConfig{MaxAge: "720h", MaxSamples: 2000},
		Scheduler: SchedulerConfig{Enabled: true, Background: "available", Interval: "5m"},
		HTTP:      HTTPConfig{Addr: "127.0.0.1:8787", RefreshEvery: "1m", RefreshBurst: 1},
	}
}
